package injector

import (
	"github.com/lk2023060901/file-manager-backend/internal/conf"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/reconcile"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-manager-backend/internal/server"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	GRPCServer *server.GRPCServer
	// ReconcileWorker is nil when reconciliation is disabled
	ReconcileWorker *reconcile.Worker
}
