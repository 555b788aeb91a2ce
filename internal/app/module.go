package app

import (
	"time"

	"github.com/fernlabs/tally/internal/app/api/server"
	"github.com/fernlabs/tally/internal/app/scheduler"
	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/analytics"
	"github.com/fernlabs/tally/internal/app/service/billingsetup"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	"github.com/fernlabs/tally/internal/app/service/transaction"
	"github.com/fernlabs/tally/internal/app/service/webhook"
	webhooklog "github.com/fernlabs/tally/internal/app/service/webhook_log"
	"github.com/fernlabs/tally/internal/platform/checkout"
	"github.com/fernlabs/tally/internal/platform/db"
	"github.com/fernlabs/tally/pkg/config"
	"github.com/fernlabs/tally/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	checkout.Module,
	server.Module,
	account.Module,
	transaction.Module,
	invoice.Module,
	analytics.Module,
	billingsetup.Module,
	webhooklog.Module,
	webhook.Module,
	scheduler.Module,
)
