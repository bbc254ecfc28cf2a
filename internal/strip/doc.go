// Package strip renders LED activity onto periph.io displays: an NRZ LED
// strip (WS2812 and friends) driven over SPI, or a console emulator that
// prints ANSI colours.
//
// It lets the simulator drive real hardware from the same snapshots the
// browser preview uses.
package strip
