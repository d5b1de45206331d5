package mirror

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/metrics"
	"ramzinex-alert-bot/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const bufferSize = 1024

// LatestPrice is the value stored per symbol and published on every update.
type LatestPrice struct {
	Symbol   string `json:"symbol"`
	MarketID int64  `json:"market_id"`
	Price    string `json:"price"`
	Volume   string `json:"volume,omitempty"`
	Side     string `json:"side,omitempty"`
	Ts       int64  `json:"ts"`
}

// Mirror copies push price points to Redis so other processes can read the
// latest prices without their own feed connection. Put never blocks the feed.
type Mirror struct {
	rdb       *redis.Client
	keyLatest string
	channel   string
	ttl       time.Duration
	buf       chan types.PricePoint
	opTimeout time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Mirror {
	return &Mirror{
		rdb:       rdb,
		keyLatest: prefix + ":latest",
		channel:   prefix + ":prices",
		ttl:       ttl,
		buf:       make(chan types.PricePoint, bufferSize),
		opTimeout: 5 * time.Second,
	}
}

// Connect creates a client and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	return rdb, nil
}

func (m *Mirror) Put(p types.PricePoint) {
	select {
	case m.buf <- p:
	default:
		metrics.MirrorDropped.Inc()
	}
}

// Run writes buffered points until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-m.buf:
			if err := m.write(ctx, p); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("symbol", p.Instrument.Symbol).Warn("Redis mirror write failed")
			}
		}
	}
}

func (m *Mirror) write(ctx context.Context, p types.PricePoint) error {
	b, err := json.Marshal(latestPrice(p))
	if err != nil {
		return errors.Wrap(err, "encode price")
	}

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, m.keyLatest, p.Instrument.Symbol, string(b))
	if m.ttl > 0 {
		pipe.Expire(ctx, m.keyLatest, m.ttl)
	}
	pipe.Publish(ctx, m.channel, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

func latestPrice(p types.PricePoint) LatestPrice {
	lp := LatestPrice{
		Symbol:   p.Instrument.Symbol,
		MarketID: p.Instrument.MarketID,
		Price:    p.Price.String(),
		Side:     p.Side,
		Ts:       p.ObservedAt.UnixMilli(),
	}
	if p.Volume.Valid {
		lp.Volume = p.Volume.Decimal.String()
	}
	return lp
}
