package infrastructure

import (
	"net"
	"storefront/internal/pkg/bootstrap"
	"strconv"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DSN 根据配置生成 MySQL 连接串。
// ClientFoundRows 让 UPDATE 返回匹配行数而不是变更行数，仓储依赖它判断记录是否存在。
func DSN(cfg bootstrap.MySQLConfig) string {
	c := mysqldrv.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.ClientFoundRows = true
	// 写操作不受请求 context 的截止时间约束，由驱动层超时兜底
	c.Timeout = 5 * time.Second
	c.ReadTimeout = 30 * time.Second
	c.WriteTimeout = 30 * time.Second
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// OpenMySQL 打开连接池，并在需要时自动迁移表结构
func OpenMySQL(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if !cfg.SkipMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrate 创建或更新全部表结构
func AutoMigrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&ProductModel{}, &OrderModel{}, &OrderItemModel{}, &OutboxModel{}), "auto migrate")
}

// IsDuplicateKey 判断是否为唯一键冲突
func IsDuplicateKey(err error) bool {
	var myErr *mysqldrv.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
