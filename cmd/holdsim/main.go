// Command holdsim wires the full coordination stack against a live
// seat lock service and walks one interactive booking session:
// populate availability for a results page, expand a trip, select
// seats, save a checkout draft, run the hold countdown, then sign
// out.  It exists to exercise the wiring end to end; the library is
// normally embedded in a booking frontend instead.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/availability"
	"github.com/safirbus/holdcoord/internal/config"
	"github.com/safirbus/holdcoord/internal/draft"
	"github.com/safirbus/holdcoord/internal/expiry"
	"github.com/safirbus/holdcoord/internal/identity"
	"github.com/safirbus/holdcoord/internal/lockapi"
	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/registry"
	"github.com/safirbus/holdcoord/internal/selection"
	"github.com/safirbus/holdcoord/internal/session"
	"github.com/safirbus/holdcoord/internal/store"
	"github.com/safirbus/holdcoord/internal/trip"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	hold := config.LoadHoldConfig()
	log := logger.New(cfg.Env)
	logger.Set(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	var st store.Store = store.NewMemory()
	if rdb := config.NewRedisClient(); rdb != nil {
		st = store.NewRedis(rdb, sessionID, cfg.SessionTTL)
		log.Info("using redis session store")
	}

	clientID := identity.ClientID(ctx, st)
	reg := registry.New(ctx, st)
	client := lockapi.NewHTTPClient(cfg.LockBaseURL, nil)
	beacon := lockapi.NewBeacon(client, hold.BeaconTimeout, log)

	tripID := envOr("SIM_TRIP_ID", "trip-1")
	departure := envOr("SIM_DEPARTURE", "21:30")
	date := envOr("SIM_DATE", time.Now().Format("2006-01-02"))
	seats := strings.Split(envOr("SIM_SEATS", "12A,12B"), ",")
	key := trip.Key{TripID: tripID, Departure: departure}

	recon := availability.New(client, date, availability.Config{
		TTLNormal:      hold.TTLNormal,
		TTLForce:       hold.TTLForce,
		DefaultBackoff: hold.DefaultBackoff,
		BatchSize:      hold.BatchSize,
		PollInterval:   hold.PollInterval,
		PollCap:        hold.PollCap,
	}, log)

	coord := selection.New(selection.Config{
		Client:   client,
		Registry: reg,
		Avail:    recon,
		ClientID: clientID,
		Date:     date,
		MaxSeats: hold.MaxSeats,
		Notify: func(k trip.Key, msg string) {
			log.Info("notice", zap.String("trip", k.String()), zap.String("message", msg))
		},
		Log: log,
	})

	bus := session.NewBus()
	life := session.NewLifecycle(bus, reg, client, beacon,
		session.NewHandoffGuard(st), coord, date, clientID, log)
	go life.Run(ctx)
	go session.NewTokenWatcher(st, bus, 0, log).Run(ctx)
	if cfg.AMQPURL != "" {
		relay := session.NewAMQPRelay(cfg.AMQPURL, sessionID, uuid.NewString(), bus, log)
		life.SetBroadcaster(relay)
		go relay.Run(ctx)
	}

	recon.Populate(ctx, []trip.Key{key})
	go recon.Run(ctx)

	coord.ExpandTrip(ctx, &key)
	for _, s := range seats {
		if err := coord.Select(ctx, key, trip.SeatLabel(strings.TrimSpace(s)), ""); err != nil {
			log.Warn("select failed", zap.String("seat", s), zap.Error(err))
		}
	}
	sel := coord.Selection(key)
	log.Info("selection", zap.Any("seats", sel.Seats), zap.Int64("total_cents", sel.TotalPrice))

	drafts := draft.NewStore(st)
	token, err := drafts.Save(ctx, &draft.Draft{
		TripID: tripID, Departure: departure, Date: date,
		Seats: sel.Seats, BoardingPoint: sel.BoardingPoint, DroppingPoint: sel.DroppingPoint,
		BasePrice: sel.BasePrice, ConvenienceFee: sel.ConvenienceFee, TotalPrice: sel.TotalPrice,
	})
	if err != nil {
		log.Warn("draft save failed", zap.Error(err))
	} else {
		log.Info("draft saved", zap.String("handoff_token", token))
	}

	monitor := expiry.New(expiry.Config{
		Client: client, Key: key, Date: date, ClientID: clientID,
		Fallback: hold.FallbackWindow,
		OnTick: func(remaining time.Duration) {
			if int(remaining.Seconds())%30 == 0 {
				log.Info("hold countdown", zap.Duration("remaining", remaining))
			}
		},
		OnExpire: func() {
			log.Warn("hold expired")
			bus.Publish(session.Signal{Reason: session.ReasonLogout})
		},
		Log: log,
	})
	monitor.Start(ctx)

	<-ctx.Done()
	monitor.Stop()
	life.SignOut(context.Background(), session.ReasonLogout)
	coord.Wait()
	log.Info("session closed")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
