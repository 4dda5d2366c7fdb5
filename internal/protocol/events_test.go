package protocol

import (
	"errors"
	"testing"

	"github.com/evindal/stonecast/internal/models"
)

func TestValidateSenderHostOnly(t *testing.T) {
	hostOnlyEvents := []EventType{
		EventGameStart, EventStonePositions, EventStonesSettled,
		EventEndComplete, EventGameOver,
	}
	for _, ev := range hostOnlyEvents {
		if err := ValidateSender(ev, models.RoleHost); err != nil {
			t.Errorf("host should send %s: %v", ev, err)
		}
		if err := ValidateSender(ev, models.RoleGuest); !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("guest sending %s: got %v, want ErrNotAuthorized", ev, err)
		}
	}
}

func TestValidateSenderSharedEvents(t *testing.T) {
	shared := []EventType{
		EventTossChoice, EventColorChoice, EventAimState, EventShot,
		EventSweep, EventRematchRequest, EventRematchAccept, EventChat,
	}
	for _, ev := range shared {
		for _, role := range []models.Role{models.RoleHost, models.RoleGuest} {
			if err := ValidateSender(ev, role); err != nil {
				t.Errorf("%s should send %s: %v", role, ev, err)
			}
		}
	}
}

func TestValidateSenderUnknownEvent(t *testing.T) {
	if err := ValidateSender("teleport", models.RoleHost); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("got %v, want ErrUnknownEvent", err)
	}
}

func TestEndNumber(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]interface{}
		want    int
	}{
		{"float from json", map[string]interface{}{"end": float64(3)}, 3},
		{"native int", map[string]interface{}{"end": 7}, 7},
		{"absent", map[string]interface{}{"stones": []interface{}{}}, -1},
		{"nil payload", nil, -1},
		{"wrong type", map[string]interface{}{"end": "3"}, -1},
	}
	for _, c := range cases {
		env := Envelope{Type: EventStonePositions, Payload: c.payload}
		if got := env.EndNumber(); got != c.want {
			t.Errorf("%s: EndNumber() = %d, want %d", c.name, got, c.want)
		}
	}
}
