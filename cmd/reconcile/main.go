package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lk2023060901/file-manager-backend/internal/conf"
	"github.com/lk2023060901/file-manager-backend/internal/data"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/reconcile"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/injector"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "config file path")
	repair     = flag.Bool("repair", false, "dequeue and repair records instead of only reporting them")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if !config.Reconcile.Enabled {
		log.Fatalf("reconcile.enabled 未开启，没有可处理的对账队列")
	}

	zlog, err := logger.New(&config.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync()

	mode := reconcile.ModeReport
	if *repair {
		mode = reconcile.ModeRepair
	}

	fmt.Println("==========================================")
	fmt.Printf("对账队列处理 (mode=%s)\n", mode)
	fmt.Println("==========================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 连接存储
	fmt.Println("1. 连接对象存储、元数据存储和 Redis...")
	d, cleanup, err := data.NewData(config, zlog)
	if err != nil {
		log.Fatalf("连接存储失败: %v", err)
	}
	defer cleanup()

	ledger := reconcile.NewRedisLedger(d.Redis, zlog)
	pending, err := ledger.Pending(ctx)
	if err != nil {
		log.Fatalf("读取队列长度失败: %v", err)
	}
	fmt.Printf("   待处理记录: %d\n", pending)

	// 2. 处理队列
	fmt.Println("2. 处理对账记录...")
	worker, closeWorker, err := injector.NewReconcileWorker(config, d, ledger, nil, zlog, mode)
	if err != nil {
		log.Fatalf("创建对账 worker 失败: %v", err)
	}
	defer closeWorker()

	summary, err := worker.Drain(ctx)
	if err != nil {
		log.Fatalf("处理对账记录失败: %v", err)
	}

	fmt.Println("\n==========================================")
	fmt.Println("处理完成")
	fmt.Println("==========================================")
	fmt.Printf("  - 已处理: %d\n", summary.Processed)
	fmt.Printf("  - 已一致: %d\n", summary.Resolved)
	fmt.Printf("  - 已修复: %d\n", summary.Repaired)
	fmt.Printf("  - 仅报告: %d\n", summary.Reported)
	fmt.Printf("  - 重新入队: %d\n", summary.Requeued)
	fmt.Printf("  - 死信: %d\n", summary.Buried)
	fmt.Printf("  - 失败: %d\n", summary.Failed)
}
