// Package plic implements a shim over the platform-level interrupt
// controller: priority, pending, enable, and per-hart-context register
// banks, mapped once into kernel space, plus a small ISR table the trap
// handler consults after claiming an interrupt.
package plic

import "rvos/kernel/addr"

// Register bank layout, in bytes from the controller's base address, per
// the RISC-V PLIC specification.
const (
	prioritiesOffset = 0x0
	pendingOffset    = 0x1000
	enablesOffset    = 0x2000
	contextOffset    = 0x20_0000
	contextStride    = 0x1000

	// thresholdWord and claimWord are offsets, in 32-bit words, within a
	// single hart context's register page.
	thresholdWord = 0
	claimWord     = 1
)

// InterruptRoutine handles one external interrupt source.
type InterruptRoutine func(irq uint32)

// Controller is a mapped view of the interrupt controller's registers.
// Every register access goes through load32/store32 so the
// compiler never reorders or elides them.
type Controller struct {
	priorities addr.Virtual
	pending    addr.Virtual
	enables    addr.Virtual
	contexts   addr.Virtual

	isrs [32]InterruptRoutine
}

// New wraps the four register banks already mapped starting at base by the
// caller (kernel.Kmain, via the page-table manager).
func New(base addr.Virtual) *Controller {
	return &Controller{
		priorities: base.Add(prioritiesOffset),
		pending:    base.Add(pendingOffset),
		enables:    base.Add(enablesOffset),
		contexts:   base.Add(contextOffset),
	}
}

// RegisterISR associates a handler with an interrupt source. The trap
// handler's high-level dispatch calls it when Claim reports irq.
func (c *Controller) RegisterISR(irq uint32, isr InterruptRoutine) {
	c.isrs[irq] = isr
}

// ISR returns the handler registered for irq, if any.
func (c *Controller) ISR(irq uint32) (InterruptRoutine, bool) {
	if int(irq) >= len(c.isrs) || c.isrs[irq] == nil {
		return nil, false
	}
	return c.isrs[irq], true
}

// SetPriority sets the priority level for an interrupt source. A source
// with priority 0 never fires.
func (c *Controller) SetPriority(irq uint32, level uint32) {
	store32(c.priorities.Add(addr.Offset(irq)*4), level)
}

// Enable enables or disables delivery of irq to hart context 0, the only
// context this single-hart kernel programs.
func (c *Controller) Enable(irq uint32, enabled bool) {
	wordAddr := c.enables.Add(addr.Offset(irq/32) * 4)
	bit := uint32(1) << (irq % 32)
	cur := load32(wordAddr)
	if enabled {
		store32(wordAddr, cur|bit)
	} else {
		store32(wordAddr, cur&^bit)
	}
}

// SetThreshold sets the priority threshold below which interrupts are
// masked for hart context 0.
func (c *Controller) SetThreshold(level uint32) {
	store32(c.contextAddr(thresholdWord), level)
}

// Claim returns the highest-priority pending interrupt for hart context 0
// and marks it in-service, or false if nothing is pending.
func (c *Controller) Claim() (uint32, bool) {
	irq := load32(c.contextAddr(claimWord))
	if irq == 0 {
		return 0, false
	}
	return irq, true
}

// Complete signals that irq's handler has finished, allowing the controller
// to deliver it again.
func (c *Controller) Complete(irq uint32) {
	store32(c.contextAddr(claimWord), irq)
}

func (c *Controller) contextAddr(word int) addr.Virtual {
	return c.contexts.Add(addr.Offset(word) * 4)
}
