package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"leaguebid/internal/market"
	"leaguebid/internal/notify"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
	ctxErr error
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	f.ctxErr = ctx.Err()
	return f.err
}

var sampleReport = market.ClearingReport{
	SessionID:       "s1",
	LeagueID:        "l1",
	SequenceNumber:  4,
	ItemsSold:       1,
	ItemsUnsold:     9,
	TotalValueMoved: 1_500,
	Transfers:       []market.Transfer{{ItemID: "i1", AssetID: "p1", AssetName: "Player 1", TeamID: "team-a", BidID: "b1", Amount: 1_500}},
	ClosedAt:        time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
}

func TestDispatcher_FansOutToEverySink(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b", err: errors.New("down")}
	d := NewDispatcher(quietLogger(), a, b)
	check.Equal(t, []string{"a", "b"}, d.Sinks())

	err := d.ReportClearing(context.Background(), sampleReport)
	check.Error(t, err)
	check.Equal(t, 1, len(a.events))
	check.Equal(t, 1, len(b.events))

	ev := a.events[0]
	check.Equal(t, TypeSessionCleared, ev.Type)
	check.Equal(t, "l1", ev.LeagueID)
	check.Equal(t, "s1", ev.SessionID)
	var decoded market.ClearingReport
	assert.NoError(t, json.Unmarshal(ev.Payload, &decoded))
	check.Equal(t, sampleReport.TotalValueMoved, decoded.TotalValueMoved)
}

func TestDispatcher_IgnoresCallerCancellation(t *testing.T) {
	a := &fakeSink{name: "a"}
	d := NewDispatcher(quietLogger(), a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, d.ReportReward(ctx, market.RewardGrant{TeamID: "team-a", LeagueID: "l1", Kind: market.RewardCash, Amount: 10}))
	check.Equal(t, 1, len(a.events))
	check.NoError(t, a.ctxErr)
	grant, ok := a.events[0].Reward()
	check.True(t, ok)
	check.Equal(t, int64(10), grant.Amount)
}

func TestDispatcher_NoSinks(t *testing.T) {
	check.NoError(t, NewDispatcher(quietLogger()).ReportClearing(context.Background(), sampleReport))
}

type fakePutter struct {
	keys   []string
	bodies []string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(b))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_StoresClearingReports(t *testing.T) {
	put := &fakePutter{}
	a := newS3Archive(put, "bucket", "/reports/")

	ev, err := NewClearingEvent(sampleReport)
	assert.NoError(t, err)
	assert.NoError(t, a.Publish(context.Background(), ev))

	reward, err := NewRewardEvent(market.RewardGrant{LeagueID: "l1", Kind: market.RewardCash, Amount: 5})
	assert.NoError(t, err)
	assert.NoError(t, a.Publish(context.Background(), reward))

	check.Equal(t, []string{"reports/l1/s1.json"}, put.keys)
	check.Equal(t, string(ev.Payload), put.bodies[0])
}

func TestS3Archive_KeyWithoutPrefix(t *testing.T) {
	a := newS3Archive(&fakePutter{}, "bucket", "")
	check.Equal(t, "l1/s1.json", a.Key("l1", "s1"))
}

type chatSender struct {
	got []string
}

func (c *chatSender) Send(_ context.Context, title, _ string) error {
	c.got = append(c.got, title)
	return nil
}

func (c *chatSender) Name() string { return "chat" }

func TestNotifySink(t *testing.T) {
	chat := &chatSender{}
	sink := NewNotifySink(notify.NewNotifier([]notify.Sender{chat}, nil, quietLogger()))
	d := NewDispatcher(quietLogger(), sink)

	assert.NoError(t, d.ReportClearing(context.Background(), sampleReport))
	assert.NoError(t, d.ReportReward(context.Background(), market.RewardGrant{TeamID: "team-a", Kind: market.RewardCash, Amount: 1}))
	check.Equal(t, []string{"Market session #4 closed", "Reward granted"}, chat.got)
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("LEAGUEBID_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEAGUEBID_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	stream := "leaguebid:test:" + time.Now().Format("150405.000000")
	bus, err := NewRedisBus(ctx, RedisConfig{Addr: addr, Stream: stream})
	assert.NoError(t, err)
	defer bus.Close()

	ev, err := NewClearingEvent(sampleReport)
	assert.NoError(t, err)
	assert.NoError(t, bus.Publish(ctx, ev))

	msgs, err := bus.rdb.XRange(ctx, stream, "-", "+").Result()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(msgs))
	check.Equal(t, TypeSessionCleared, msgs[0].Values["type"])
	check.Equal(t, "s1", msgs[0].Values["session_id"])
	_ = bus.rdb.Del(ctx, stream).Err()
}

