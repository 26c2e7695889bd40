package codec

import (
	"errors"
	"strings"
	"testing"

	"simpidemic/internal/action"
	"simpidemic/internal/param"
)

func newState() State {
	set := param.NewSet().MustAdd(
		param.NewFloat("contactsPerDay", "cpd", 0, 30, 15),
		param.NewInt("treatmentCapacityPer100K", "tcap", 0, 3000, 25),
		param.NewArray("transmissionProbability", "tp", 0, 1, []float64{0, 0.5, 0.25}),
	)
	return State{Params: set, Kernel: "peak", Actions: action.NewSchedule()}
}

func TestEncodeWritesVersionParamsAndActions(t *testing.T) {
	st := newState()
	if _, err := st.Actions.AddValue(10, "contactsPerDay", "cpd", 2, true); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Actions.AddValue(20, "contactsPerDay", "cpd", 8.5, false); err != nil {
		t.Fatal(err)
	}
	q := Encode(st)
	if q.Get(KeyVersion) != Version || q.Get(KeyKernel) != "peak" {
		t.Fatalf("missing header keys: %v", q)
	}
	if q.Get("cpd") != "15" || q.Get("tcap") != "25" || q.Get("tp") != "0,0.5,0.25" {
		t.Fatalf("unexpected parameter encoding: %v", q)
	}
	if got := strings.Join(q["adcpd"], ","); got != "10,20" {
		t.Fatalf("unexpected action days %q", got)
	}
	if got := strings.Join(q["avcpd"], ","); got != "2,8.5" {
		t.Fatalf("unexpected action values %q", got)
	}
	if got := strings.Join(q["aacpd"], ","); got != "1,0" {
		t.Fatalf("unexpected action flags %q", got)
	}
}

func TestRoundTripRestoresState(t *testing.T) {
	src := newState()
	_ = src.Params.SetValue("contactsPerDay", 7.25)
	_ = src.Params.SetValue("treatmentCapacityPer100K", 300)
	_, _ = src.Actions.AddValue(5, "treatmentCapacityPer100K", "tcap", 100, true)
	_, _ = src.Actions.AddValue(12, "contactsPerDay", "cpd", 3, false)
	encoded := EncodeString(src)

	dst := newState()
	dst.Kernel = ""
	if errs := DecodeString("?"+encoded, &dst); errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if dst.Kernel != "peak" {
		t.Fatalf("kernel not restored: %q", dst.Kernel)
	}
	if dst.Params.Value("contactsPerDay") != 7.25 || dst.Params.Value("treatmentCapacityPer100K") != 300 {
		t.Fatalf("parameters not restored: %v", dst.Params.Describe())
	}
	entries := dst.Actions.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(entries))
	}
	if entries[0].Day != 5 || entries[0].Name != "treatmentCapacityPer100K" || entries[0].Value != 100 || !entries[0].Active {
		t.Fatalf("unexpected first action %+v", entries[0])
	}
	if entries[1].Day != 12 || entries[1].Value != 3 || entries[1].Active {
		t.Fatalf("unexpected second action %+v", entries[1])
	}
	if EncodeString(dst) != encoded {
		t.Fatalf("re-encoding differs:\n%s\n%s", EncodeString(dst), encoded)
	}
}

func TestDecodeFailsPerField(t *testing.T) {
	st := newState()
	errs := DecodeString("v=1&cpd=abc&tcap=40&zz=1&tp=1,2", &st)
	if len(errs) != 3 {
		t.Fatalf("expected 3 field errors, got %v", errs)
	}
	if errs[0].Key != "cpd" || errs[1].Key != "tp" || errs[2].Key != "zz" {
		t.Fatalf("unexpected failing keys %v", errs)
	}
	if !errors.Is(errs[2], ErrUnknownKey) {
		t.Fatalf("unknown key not reported: %v", errs[2])
	}
	if st.Params.Value("contactsPerDay") != 15 {
		t.Fatalf("bad field must leave value untouched")
	}
	if st.Params.Value("treatmentCapacityPer100K") != 40 {
		t.Fatalf("good field must still apply")
	}
}

func TestDecodeBatchesNotifications(t *testing.T) {
	st := newState()
	calls := 0
	var names []string
	st.Params.OnChange(func(changed []string) {
		calls++
		names = changed
	})
	if errs := DecodeString("cpd=3&tcap=10", &st); errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if calls != 1 || len(names) != 2 {
		t.Fatalf("expected one batched notification for two params, got %d %v", calls, names)
	}
}

func TestDecodeUnsupportedVersionStillApplies(t *testing.T) {
	st := newState()
	errs := DecodeString("v=9&cpd=4", &st)
	if len(errs) != 1 || errs[0].Key != KeyVersion || !errors.Is(errs[0], ErrVersion) {
		t.Fatalf("expected version error, got %v", errs)
	}
	if st.Params.Value("contactsPerDay") != 4 {
		t.Fatalf("fields should still be applied")
	}
}

func TestDecodeActionErrors(t *testing.T) {
	st := newState()
	_, _ = st.Actions.AddValue(1, "contactsPerDay", "cpd", 1, true)
	errs := DecodeString("adcpd=3&adcpd=x&avcpd=2&avcpd=4&avcpd=5&adtp=1&avtp=1&adzz=1&avzz=1&adtcap=-1&avtcap=9999", &st)
	if len(errs) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(errs), errs)
	}
	var mismatch, negative bool
	for _, e := range errs {
		mismatch = mismatch || errors.Is(e, ErrMismatch)
		negative = negative || errors.Is(e, action.ErrNegativeDay)
	}
	if !mismatch || !negative {
		t.Fatalf("expected mismatch and negative-day errors: %v", errs)
	}
	entries := st.Actions.Entries()
	if len(entries) != 1 || entries[0].Day != 3 || entries[0].Value != 2 {
		t.Fatalf("schedule should be replaced by the one valid action, got %+v", entries)
	}
}

func TestDecodeClampsActionValues(t *testing.T) {
	st := newState()
	if errs := DecodeString("adtcap=4&avtcap=9999", &st); errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if got := st.Actions.Entries()[0].Value; got != 3000 {
		t.Fatalf("expected clamp to 3000, got %v", got)
	}
}

func TestDecodeWithoutActionsKeepsSchedule(t *testing.T) {
	st := newState()
	_, _ = st.Actions.AddValue(1, "contactsPerDay", "cpd", 1, true)
	DecodeString("cpd=2", &st)
	if st.Actions.Len() != 1 {
		t.Fatalf("schedule should be untouched")
	}
	if errs := DecodeString("%zz", &st); len(errs) != 1 || errs[0].Key != "" {
		t.Fatalf("expected a single parse error, got %v", errs)
	}
}
