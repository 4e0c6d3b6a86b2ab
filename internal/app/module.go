package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/paysync/internal/app/api/server"
	billingevent "github.com/fatflowers/paysync/internal/app/service/billing_event"
	"github.com/fatflowers/paysync/internal/app/service/checkout"
	"github.com/fatflowers/paysync/internal/app/service/ledger"
	notificationhandler "github.com/fatflowers/paysync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/paysync/internal/app/service/notification_log"
	"github.com/fatflowers/paysync/internal/app/service/resync"
	"github.com/fatflowers/paysync/internal/app/service/signature"
	"github.com/fatflowers/paysync/internal/app/service/statistics"
	"github.com/fatflowers/paysync/internal/app/service/subscription"
	"github.com/fatflowers/paysync/internal/platform/db"
	stripeprocessor "github.com/fatflowers/paysync/internal/platform/processor/stripe"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/logger"
	"github.com/fatflowers/paysync/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	stripeprocessor.Module,
	server.Module,
	signature.Module,
	billingevent.Module,
	ledger.Module,
	subscription.Module,
	notificationlog.Module,
	notificationhandler.Module,
	checkout.Module,
	resync.Module,
	statistics.Module,
)
