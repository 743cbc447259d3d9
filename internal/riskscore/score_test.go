package riskscore

import (
	"testing"

	"github.com/dkravets/bankvault/internal/server/models"
)

func TestScore_Deterministic(t *testing.T) {
	kinds := []models.ActionKind{
		models.ActionLogin, models.ActionLogout, models.ActionAddCard,
		models.ActionDeleteCard, models.ActionBlockCard, models.ActionTransaction,
		models.ActionLimitChange, models.ActionFailedLogin,
	}
	signals := []Signals{
		{},
		{UntrustedDevice: true},
		{NewDevice: true},
		{UntrustedDevice: true, NewDevice: true, ConsecutiveFailures: 3},
	}

	for _, k := range kinds {
		for _, s := range signals {
			first := Score(k, s)
			for i := 0; i < 10; i++ {
				if got := Score(k, s); got != first {
					t.Fatalf("Score(%s, %+v) not deterministic: %d then %d", k, s, first, got)
				}
			}
		}
	}
}

func TestScore_Range(t *testing.T) {
	extreme := Signals{UntrustedDevice: true, NewDevice: true, ConsecutiveFailures: 1000}
	for k := range actionBase {
		if got := Score(k, extreme); got != MaxScore {
			t.Errorf("Score(%s, extreme) = %d, want clamp to %d", k, got, MaxScore)
		}
		if got := Score(k, Signals{}); got < MinScore || got > MaxScore {
			t.Errorf("Score(%s, zero) = %d out of range", k, got)
		}
	}
}

func TestScore_OrderingByAction(t *testing.T) {
	// a failed login must outrank a successful one, and an untrusted-device
	// login outranks a plain one
	login := Score(models.ActionLogin, Signals{})
	loginUntrusted := Score(models.ActionLogin, Signals{UntrustedDevice: true})
	failed := Score(models.ActionFailedLogin, Signals{})

	if !(login < loginUntrusted && loginUntrusted < failed) {
		t.Fatalf("expected login (%d) < untrusted login (%d) < failed login (%d)",
			login, loginUntrusted, failed)
	}
}

func TestScore_MonotonicFailureEscalation(t *testing.T) {
	// five consecutive failures on an untrusted device must strictly escalate
	prev := -1
	for failures := 0; failures < 5; failures++ {
		got := Score(models.ActionFailedLogin, Signals{
			UntrustedDevice:     true,
			ConsecutiveFailures: failures,
		})
		if got <= prev {
			t.Fatalf("failure #%d scored %d, not above previous %d", failures+1, got, prev)
		}
		prev = got
	}
}

func TestScore_UnknownAction(t *testing.T) {
	if got := Score(models.ActionKind("REBOOT"), Signals{}); got != unknownActionBase {
		t.Fatalf("unknown action scored %d, want %d", got, unknownActionBase)
	}
}
