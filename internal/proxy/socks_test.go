package proxy

import (
	"testing"
	"time"
)

func TestNewClientDirect(t *testing.T) {
	c, err := NewClient("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c.Transport != nil {
		t.Error("direct client should use the default transport")
	}
}

func TestNewClientSocks(t *testing.T) {
	c, err := NewClient("127.0.0.1:1080", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
	if c.Transport == nil {
		t.Error("socks client should carry its own transport")
	}
}
