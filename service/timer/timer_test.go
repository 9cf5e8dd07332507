package timer

import (
	"testing"
	"time"
)

func TestTimeoutStructExpires(t *testing.T) {
	ok_ch := make(chan bool, 1)
	begin := time.Now()
	if !TimeoutStruct(30*time.Millisecond, ok_ch) {
		t.Error(`nobody acknowledged; the timer must expire`)
	}
	if time.Since(begin) < 25*time.Millisecond {
		t.Error(`expired way too early`)
	}
}

func TestTimeoutStructCancelled(t *testing.T) {
	ok_ch := make(chan bool, 1)
	ok_ch <- true
	if TimeoutStruct(time.Minute, ok_ch) {
		t.Error(`an acknowledged timer must not report expiry`)
	}
}
