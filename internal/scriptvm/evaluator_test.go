package scriptvm

import "testing"

func TestRunNFunction_Simple(t *testing.T) {
	ev := New(500)
	out, err := ev.RunNFunction(`function(a){ return a.split("").reverse().join(""); }`, "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "cba" {
		t.Fatalf("got %q, want %q", out, "cba")
	}
}

func TestRunNFunction_Timeout(t *testing.T) {
	ev := New(50)
	_, err := ev.RunNFunction(`function(a){ while(true){} }`, "x")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
}

func TestRunNFunction_InvalidSource(t *testing.T) {
	ev := New(500)
	_, err := ev.RunNFunction(`function(a){ this is not valid js`, "x")
	if err == nil {
		t.Fatal("expected parse error")
	}
}
