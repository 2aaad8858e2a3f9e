package pigpiod

import "encoding/binary"

// Pulse is one element of a generic waveform: which GPIOs to drive high,
// which to drive low, and how long to hold before the next pulse.
type Pulse struct {
	// GpioOn is a bitmask of GPIOs to set high.
	GpioOn uint32

	// GpioOff is a bitmask of GPIOs to set low.
	GpioOff uint32

	// DelayUS is the hold time in microseconds.
	DelayUS uint32
}

// OnPulse returns a pulse driving the given GPIO high for delayUS.
func OnPulse(gpio, delayUS uint32) Pulse {
	return Pulse{GpioOn: 1 << gpio, DelayUS: delayUS}
}

// OffPulse returns a pulse driving the given GPIO low for delayUS.
func OffPulse(gpio, delayUS uint32) Pulse {
	return Pulse{GpioOff: 1 << gpio, DelayUS: delayUS}
}

// WaveClear deletes all waveforms known to the daemon.
func (c *Client) WaveClear() error {
	_, err := c.commandChecked(cmdWvClr, 0, 0, nil)
	return err
}

// WaveAddGeneric adds pulses to the waveform under construction.
//
// Returns:
//   - int: Total pulses in the current waveform
//   - error: If the daemon rejects the pulses
func (c *Client) WaveAddGeneric(pulses []Pulse) (int, error) {
	// Extension: one (on, off, delay) triplet of little-endian words per pulse.
	ext := make([]byte, 0, len(pulses)*12)
	var word [4]byte
	for _, p := range pulses {
		binary.LittleEndian.PutUint32(word[:], p.GpioOn)
		ext = append(ext, word[:]...)
		binary.LittleEndian.PutUint32(word[:], p.GpioOff)
		ext = append(ext, word[:]...)
		binary.LittleEndian.PutUint32(word[:], p.DelayUS)
		ext = append(ext, word[:]...)
	}

	res, err := c.commandChecked(cmdWvAG, 0, 0, ext)
	if err != nil {
		return 0, err
	}
	return int(res), nil
}

// WaveCreate finalises the waveform under construction and returns its id.
// The id is used in wave chains and with WaveDelete.
func (c *Client) WaveCreate() (int, error) {
	res, err := c.commandChecked(cmdWvCre, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return int(res), nil
}

// WaveDelete deletes a created waveform.
func (c *Client) WaveDelete(waveID int) error {
	_, err := c.commandChecked(cmdWvDel, uint32(waveID), 0, nil)
	return err
}

// WaveChain transmits a chain of waveforms.
//
// The chain is a byte script of wave ids interspersed with 255-prefixed
// control codes (loop start, loop repeat, delay). See the pigpio wave_chain
// documentation for the script format.
func (c *Client) WaveChain(chain []byte) error {
	_, err := c.commandChecked(cmdWvCha, 0, 0, chain)
	return err
}

// WaveTxBusy reports whether a waveform is still being transmitted.
func (c *Client) WaveTxBusy() (bool, error) {
	res, err := c.commandChecked(cmdWvBsy, 0, 0, nil)
	if err != nil {
		return false, err
	}
	return res != 0, nil
}

// WaveTxStop aborts the current waveform transmission.
// The GPIO is left in an undefined state; callers should re-idle the pin.
func (c *Client) WaveTxStop() error {
	_, err := c.commandChecked(cmdWvHlt, 0, 0, nil)
	return err
}
