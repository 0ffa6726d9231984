package actor

import (
	"fmt"
	"testing"
	"time"

	"github.com/berfenger/exportguard/internal/core/cache"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type inverterFixture struct {
	system *actor.ActorSystem
	conn   *fakeInverter
	cache  *cache.Cache[domain.InverterSnapshot]
	notify *recorder[domain.DataReady]
	pid    *actor.PID
}

func startInverter(t *testing.T, conn *fakeInverter, options DeviceOptions) *inverterFixture {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	f := &inverterFixture{
		system: as,
		conn:   conn,
		cache:  cache.New[domain.InverterSnapshot]("inverter_0"),
		notify: &recorder[domain.DataReady]{},
	}
	notifyPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return f.notify }))
	f.pid = as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewInverterActor("inverter_0", conn, f.cache, notifyPID, options, nil, logger)
	}))
	t.Cleanup(as.Shutdown)
	return f
}

func (f *inverterFixture) health(t *testing.T) domain.ActorHealthResponse {
	res, err := f.system.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	return res.(domain.ActorHealthResponse)
}

func (f *inverterFixture) apply(t *testing.T, req domain.ApplyConfigurationRequest) domain.ApplyConfigurationResponse {
	res, err := f.system.Root.RequestFuture(f.pid, req, 2*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.ApplyConfigurationResponse)
}

func TestInverterActorPollsAndNotifies(t *testing.T) {
	f := startInverter(t, newFakeInverter(3200), testDeviceOptions())

	assert.Eventually(t, func() bool { return len(f.notify.Received()) >= 2 }, 2*time.Second, 10*time.Millisecond)

	entry, ok := f.cache.Load()
	require.True(t, ok)
	assert.Equal(t, 3200.0, entry.Value.Telemetry.PowerWatt)
	assert.Equal(t, 10000.0, entry.Value.Nameplate.MaxPowerWatt)
	assert.True(t, entry.Value.Status.PVConnected)

	ready := f.notify.Received()
	assert.Equal(t, "inverter_0", ready[0].DeviceId)
	assert.Less(t, ready[0].Seq, ready[1].Seq)

	h := f.health(t)
	assert.True(t, h.Healthy)
	assert.Contains(t, []string{"polling", "writing"}, h.State)
}

func TestInverterActorWritesConfiguration(t *testing.T) {
	f := startInverter(t, newFakeInverter(3200), testDeviceOptions())
	assert.Eventually(t, func() bool { return len(f.notify.Received()) > 0 }, 2*time.Second, 10*time.Millisecond)

	resp := f.apply(t, domain.ApplyConfigurationRequest{
		Configuration: domain.Limit{CurrentPowerRatio: 0.32, TargetPowerRatio: 0.5, RampedTargetPowerRatio: 0.25},
	})
	require.NoError(t, resp.GetResponseError())
	require.NotNil(t, resp.Write)
	assert.True(t, resp.Write.OutputLimitEnabled)
	assert.Equal(t, uint16(2500), resp.Write.OutputLimitPercentRaw)
	assert.Equal(t, uint16(60), resp.Write.OutputLimitRevertSeconds)

	writes := f.conn.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, *resp.Write, writes[0])

	resp = f.apply(t, domain.ApplyConfigurationRequest{Configuration: domain.Deenergize{}})
	require.NoError(t, resp.GetResponseError())
	assert.False(t, resp.Write.Connect)
	assert.Len(t, f.conn.Writes(), 2)
}

func TestInverterActorDryRun(t *testing.T) {
	f := startInverter(t, newFakeInverter(3200), testDeviceOptions())
	assert.Eventually(t, func() bool { return len(f.notify.Received()) > 0 }, 2*time.Second, 10*time.Millisecond)

	resp := f.apply(t, domain.ApplyConfigurationRequest{
		Configuration: domain.Limit{RampedTargetPowerRatio: 1},
		DryRun:        true,
	})
	require.NoError(t, resp.GetResponseError())
	require.NotNil(t, resp.Write)
	assert.Equal(t, uint16(10000), resp.Write.OutputLimitPercentRaw)
	assert.Empty(t, f.conn.Writes())
}

func TestInverterActorRejectsBeforeFirstData(t *testing.T) {
	conn := newFakeInverter(0)
	conn.setConnectErr(errUnreachable)
	f := startInverter(t, conn, testDeviceOptions())

	resp := f.apply(t, domain.ApplyConfigurationRequest{Configuration: domain.Deenergize{}})
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrDeviceUnreachable)
	assert.Empty(t, conn.Writes())

	// connection is retried
	assert.Eventually(t, func() bool { return conn.connects.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.health(t).Healthy)

	conn.setConnectErr(nil)
	assert.Eventually(t, func() bool { return len(f.notify.Received()) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestInverterActorKeepsSnapshotAndReconnects(t *testing.T) {
	conn := newFakeInverter(1800)
	f := startInverter(t, conn, testDeviceOptions())
	assert.Eventually(t, func() bool { return len(f.notify.Received()) > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), conn.connects.Load())

	conn.setReadErr(fmt.Errorf("read: %w", domain.ErrDeviceTimeout))

	// two failed polls trigger a reconnect
	assert.Eventually(t, func() bool { return conn.connects.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, conn.closes.Load(), int32(1))

	entry, ok := f.cache.Load()
	require.True(t, ok)
	assert.Equal(t, 1800.0, entry.Value.Telemetry.PowerWatt)
	assert.ErrorIs(t, entry.LastError, domain.ErrDeviceTimeout)
	assert.GreaterOrEqual(t, entry.Failures, 2)

	conn.setReadErr(nil)
	seen := len(f.notify.Received())
	assert.Eventually(t, func() bool { return len(f.notify.Received()) > seen }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.health(t).Healthy }, time.Second, 20*time.Millisecond)
}

func TestInverterActorStopsOnProtocolMismatch(t *testing.T) {
	conn := newFakeInverter(0)
	conn.setConnectErr(fmt.Errorf("connect: %w", domain.ErrProtocolMismatch))
	f := startInverter(t, conn, testDeviceOptions())

	assert.Eventually(t, func() bool { return f.health(t).State == "stopped" }, 2*time.Second, 10*time.Millisecond)
	h := f.health(t)
	assert.False(t, h.Healthy)
	assert.Contains(t, h.Detail, domain.ErrProtocolMismatch.Error())

	resp := f.apply(t, domain.ApplyConfigurationRequest{Configuration: domain.Deenergize{}})
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrProtocolMismatch)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), conn.connects.Load())
}

func TestMeterActorIsReadOnly(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	snapshots := cache.New[domain.MeterSnapshot](domain.ACTOR_ID_METER)
	notify := &recorder[domain.DataReady]{}
	notifyPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return notify }))
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(domain.ACTOR_ID_METER, &fakeMeter{powerWatt: -2500}, snapshots, notifyPID, testDeviceOptions(), nil, logger)
	}))

	assert.Eventually(t, func() bool { return len(notify.Received()) > 0 }, 2*time.Second, 10*time.Millisecond)
	entry, ok := snapshots.Load()
	require.True(t, ok)
	assert.Equal(t, -2500.0, entry.Value.PowerWatt)

	res, err := as.Root.RequestFuture(pid, domain.ApplyConfigurationRequest{Configuration: domain.Deenergize{}}, time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, res.(domain.ApplyConfigurationResponse).GetResponseError(), domain.ErrInvalidInput)
}
