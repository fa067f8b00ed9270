package access

import (
	"github.com/lumenfoto/fotoaccess/config"
	"github.com/lumenfoto/fotoaccess/middleware/ratelimit"
	"github.com/lumenfoto/fotoaccess/services/audit"
	"github.com/lumenfoto/fotoaccess/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideAccessService),
)

func ProvideAccessService(cfg *config.Config, db *gorm.DB, auditSvc *audit.Service, logger *logging.Service, tracker *ratelimit.Tracker) *Service {
	service := NewService(cfg, db, auditSvc, logger)
	if tracker != nil {
		service.SetFailureTracker(tracker)
	}

	return service
}
