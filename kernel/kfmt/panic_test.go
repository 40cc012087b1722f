package kfmt

import (
	"bytes"
	"errors"
	"testing"

	kerrors "rvos/kernel/errors"
)

func TestPanic(t *testing.T) {
	defer func() {
		haltFn = func() {
			for {
			}
		}
		SetOutputSink(nil)
	}()

	var haltCalled bool
	haltFn = func() { haltCalled = true }

	t.Run("with *errors.Error", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic(kerrors.New(kerrors.ExecutableFormat, "panic test"))

		exp := "\n-----------------------------------\n[executable-format] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected haltFn to be called by Panic")
		}
	})

	t.Run("with error", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic(errors.New("go error"))

		exp := "\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected haltFn to be called by Panic")
		}
	})

	t.Run("with string", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic("string error")

		exp := "\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected haltFn to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------"
		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected haltFn to be called by Panic")
		}
	})
}
