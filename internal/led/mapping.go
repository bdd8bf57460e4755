package led

import "fmt"

// Mapping maps each logical channel to a physical output index on the PWM
// controller. It is fixed once the sink is opened.
type Mapping [NumChannels]int

// DefaultMapping maps channels 1:1 onto outputs 0 through 8.
func DefaultMapping() Mapping {
	var m Mapping
	for i := range m {
		m[i] = i
	}
	return m
}

// Output returns the physical output index for ch.
func (m Mapping) Output(ch Channel) int {
	return m[ch]
}

// Validate checks that every output is within [0, outputs) and that no two
// channels share an output.
func (m Mapping) Validate(outputs int) error {
	seen := make(map[int]Channel, NumChannels)
	for _, ch := range Channels {
		out := m[ch]
		if out < 0 || out >= outputs {
			return fmt.Errorf("channel %s mapped to output %d, want [0, %d)", ch, out, outputs)
		}
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("channels %s and %s both mapped to output %d", prev, ch, out)
		}
		seen[out] = ch
	}
	return nil
}

// WithOverrides returns a copy of m with the given channel names remapped.
func (m Mapping) WithOverrides(overrides map[string]int) (Mapping, error) {
	for name, out := range overrides {
		ch, err := ParseChannel(name)
		if err != nil {
			return m, err
		}
		m[ch] = out
	}
	return m, nil
}

// Outputs returns the number of outputs the mapping needs, which is one past
// the highest mapped output.
func (m Mapping) Outputs() int {
	var n int
	for _, out := range m {
		n = max(n, out+1)
	}
	return n
}
