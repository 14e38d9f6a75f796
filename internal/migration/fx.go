package migration

import (
	auditdomain "github.com/studioordo/backoffice/internal/audit/domain"
	"github.com/studioordo/backoffice/internal/config"
	dealdomain "github.com/studioordo/backoffice/internal/deal/domain"
	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	payoutdomain "github.com/studioordo/backoffice/internal/payout/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// mysql and sqlite (local/dev) take the gorm schema directly.
		return conn.AutoMigrate(
			&dealdomain.Offer{},
			&dealdomain.Deal{},
			&jobdomain.JobRecord{},
			&ledgerdomain.LedgerEntry{},
			&payoutdomain.PayoutExecution{},
			&payoutdomain.ConnectAccount{},
			&auditdomain.AuditLog{},
		)
	}),
)
