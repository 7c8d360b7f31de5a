package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-hailing/internal/models"
)

func marker(driverID string, ts time.Time) Event {
	return Event{
		Type:      EventDriverMarker,
		DriverID:  driverID,
		Location:  &models.Coord{Lat: 1, Lng: 2},
		Timestamp: ts,
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	sub := hub.Subscribe(RolePassenger, Filter{})

	base := time.Now()
	hub.Publish(marker("d1", base))
	hub.Publish(marker("d1", base.Add(time.Second)))
	hub.Publish(marker("d1", base.Add(2*time.Second)))

	var got []Event
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.Len(t, got, 3)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))
	assert.True(t, got[1].Timestamp.Before(got[2].Timestamp))
}

func TestMarkersGoToPassengersOnly(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	passenger := hub.Subscribe(RolePassenger, Filter{})
	driver := hub.Subscribe(RoleDriver, Filter{})

	hub.Publish(marker("d1", time.Now()))

	select {
	case <-passenger.Events():
	case <-time.After(time.Second):
		t.Fatal("passenger did not receive the marker")
	}
	select {
	case ev := <-driver.Events():
		t.Fatalf("driver subscriber received %v", ev)
	default:
	}
}

func TestDriverFilter(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	watching := hub.Subscribe(RolePassenger, Filter{DriverID: "d1"})
	other := hub.Subscribe(RolePassenger, Filter{DriverID: "d2"})

	hub.Publish(marker("d1", time.Now()))

	select {
	case ev := <-watching.Events():
		assert.Equal(t, "d1", ev.DriverID)
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber did not receive the marker")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("wrong driver's watcher received %v", ev)
	default:
	}
}

func TestRideFilter(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	watching := hub.Subscribe(RolePassenger, Filter{RideID: "r1"})
	other := hub.Subscribe(RolePassenger, Filter{RideID: "r2"})

	hub.Publish(Event{Type: EventMeterStarted, RideID: "r1", DriverID: "d1", Timestamp: time.Now()})

	select {
	case ev := <-watching.Events():
		assert.Equal(t, EventMeterStarted, ev.Type)
		assert.Equal(t, "r1", ev.RideID)
	case <-time.After(time.Second):
		t.Fatal("ride watcher did not receive the event")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("wrong ride's watcher received %v", ev)
	default:
	}
}

func TestSlowSubscriberIsPruned(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()
	slow := hub.Subscribe(RolePassenger, Filter{})
	require.Equal(t, 1, hub.Len())

	base := time.Now()
	hub.Publish(marker("d1", base))
	hub.Publish(marker("d1", base.Add(time.Second)))
	// buffer full: this delivery fails and evicts the subscriber
	hub.Publish(marker("d1", base.Add(2*time.Second)))

	assert.Equal(t, 0, hub.Len())

	// buffered events drain in order, then the channel closes
	ev, ok := <-slow.Events()
	require.True(t, ok)
	assert.True(t, ev.Timestamp.Equal(base))
	ev, ok = <-slow.Events()
	require.True(t, ok)
	assert.True(t, ev.Timestamp.Equal(base.Add(time.Second)))
	_, ok = <-slow.Events()
	assert.False(t, ok)
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	sub := hub.Subscribe(RolePassenger, Filter{})

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Len())

	// publishing after the close must not panic
	hub.Publish(marker("d1", time.Now()))
}

func TestHubCloseClosesAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe(RolePassenger, Filter{})
	b := hub.Subscribe(RoleDriver, Filter{})

	hub.Close()

	_, ok := <-a.Events()
	assert.False(t, ok)
	_, ok = <-b.Events()
	assert.False(t, ok)

	// subscribing after close yields an already-closed subscriber
	late := hub.Subscribe(RolePassenger, Filter{})
	_, ok = <-late.Events()
	assert.False(t, ok)
}
