package policy

import "testing"

func TestNext_Table(t *testing.T) {
	p := New(3)
	cases := []struct {
		counter    int
		pass       bool
		wantCount  int
		wantAction Action
	}{
		{0, true, 0, None},
		{5, true, 0, None},
		{0, false, 1, UserAlert},
		{1, false, 2, UserAlert},
		{2, false, 3, UserAlert | AdminEscalation},
		{3, false, 4, UserAlert},
		{10, false, 11, UserAlert},
		{-4, false, 1, UserAlert},
	}
	for _, c := range cases {
		n, a := p.Next(c.counter, c.pass)
		if n != c.wantCount || a != c.wantAction {
			t.Fatalf("Next(%d,%v)=(%d,%s) want (%d,%s)", c.counter, c.pass, n, a, c.wantCount, c.wantAction)
		}
	}
}

func TestNext_EscalatesOncePerStreak(t *testing.T) {
	p := New(3)
	counter := 0
	var got []Action
	for i := 0; i < 4; i++ {
		var a Action
		counter, a = p.Next(counter, false)
		got = append(got, a)
	}
	want := []Action{UserAlert, UserAlert, UserAlert | AdminEscalation, UserAlert}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %s want %s", i, got[i], want[i])
		}
	}

	counter, a := p.Next(counter, true)
	if counter != 0 || a != None {
		t.Fatalf("pass should reset, got (%d,%s)", counter, a)
	}

	// a new streak escalates again
	for i := 0; i < 3; i++ {
		counter, a = p.Next(counter, false)
	}
	if !a.Has(AdminEscalation) {
		t.Fatalf("second streak should escalate, got %s", a)
	}
}

func TestNew_DefaultsThreshold(t *testing.T) {
	if New(0).Threshold != DefaultThreshold || New(-1).Threshold != DefaultThreshold {
		t.Fatalf("threshold below 1 should use default")
	}
	// zero value behaves like the default as well
	var p Policy
	n, a := p.Next(2, false)
	if n != 3 || !a.Has(AdminEscalation) {
		t.Fatalf("zero policy: got (%d,%s)", n, a)
	}
}

func TestNext_ThresholdOne(t *testing.T) {
	p := New(1)
	n, a := p.Next(0, false)
	if n != 1 || a != UserAlert|AdminEscalation {
		t.Fatalf("got (%d,%s)", n, a)
	}
	if _, a = p.Next(n, false); a != UserAlert {
		t.Fatalf("no repeat escalation, got %s", a)
	}
}

func TestAction_Has(t *testing.T) {
	a := UserAlert | AdminEscalation
	if !a.Has(UserAlert) || !a.Has(AdminEscalation) {
		t.Fatalf("combined action should contain both")
	}
	if UserAlert.Has(AdminEscalation) || None.Has(None) {
		t.Fatalf("unexpected Has result")
	}
}
