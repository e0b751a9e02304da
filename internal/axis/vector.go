package axis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Neutral is the midpoint every axis starts from.
const Neutral = 50

// Vector holds eight letter scores in [0,100]. Only the first pole of each
// axis is stored; the second pole is always 100 minus the first, so opposing
// pairs sum to exactly 100 at every observable point.
type Vector struct {
	first [taxonomy.NumAxes]int
}

// Delta is a bounded adjustment to one letter, tagged with the rule that
// produced it.
type Delta struct {
	Letter taxonomy.Letter
	Amount int
	Rule   string
}

// NewNeutral returns a vector with every axis at 50/50.
func NewNeutral() Vector {
	var v Vector
	for i := range v.first {
		v.first[i] = Neutral
	}
	return v
}

// FromCode returns a vector leaning toward each letter of code with the given
// strength (50..100).
func FromCode(code taxonomy.Code, strength int) (Vector, error) {
	if !taxonomy.IsValid(code) {
		return Vector{}, &taxonomy.UnknownCodeError{Code: string(code)}
	}
	strength = clamp(strength)
	if strength < Neutral {
		strength = Neutral
	}
	v := NewNeutral()
	for _, a := range taxonomy.Axes() {
		v.Set(code.Letter(a), strength)
	}
	return v, nil
}

// Get returns the score of a letter. Unknown letters score 0.
func (v Vector) Get(l taxonomy.Letter) int {
	axis, first, ok := taxonomy.AxisOf(l)
	if !ok {
		return 0
	}
	if first {
		return v.first[axis]
	}
	return 100 - v.first[axis]
}

// Set assigns a letter's score, clamped to [0,100]; the opposite letter
// becomes 100 minus the score.
func (v *Vector) Set(l taxonomy.Letter, score int) {
	axis, first, ok := taxonomy.AxisOf(l)
	if !ok {
		return
	}
	score = clamp(score)
	if first {
		v.first[axis] = score
	} else {
		v.first[axis] = 100 - score
	}
}

// Apply adds a batch of deltas and renormalizes every touched axis. Deltas
// on both poles of an axis net against each other before renormalization.
func (v *Vector) Apply(batch ...Delta) {
	var net [taxonomy.NumAxes]int
	for _, d := range batch {
		axis, first, ok := taxonomy.AxisOf(d.Letter)
		if !ok {
			continue
		}
		if first {
			net[axis] += d.Amount
		} else {
			net[axis] -= d.Amount
		}
	}
	for i, n := range net {
		if n != 0 {
			v.first[i] = clamp(v.first[i] + n)
		}
	}
}

// Dominant returns the stronger letter of an axis. Ties go to the first pole.
func (v Vector) Dominant(a taxonomy.Axis) taxonomy.Letter {
	first, second := a.Letters()
	if v.first[a] >= Neutral {
		return first
	}
	return second
}

// DominantCode maps the dominant letter of each axis to a code and validates
// it through the registry.
func (v Vector) DominantCode() (taxonomy.Code, error) {
	var letters [taxonomy.NumAxes]taxonomy.Letter
	for _, a := range taxonomy.Axes() {
		letters[a] = v.Dominant(a)
	}
	return taxonomy.FromLetters(letters)
}

// Margin returns how far an axis sits from the midpoint, 0..50.
func (v Vector) Margin(a taxonomy.Axis) int {
	m := v.first[a] - Neutral
	if m < 0 {
		return -m
	}
	return m
}

// BreakTies moves every axis sitting exactly at the midpoint one point toward
// a pole picked from seed. The same seed always picks the same poles.
func (v *Vector) BreakTies(seed string) {
	if seed == "" {
		return
	}
	sum := blake2b.Sum256([]byte(seed))
	for _, a := range taxonomy.Axes() {
		if v.first[a] != Neutral {
			continue
		}
		if sum[a]&1 == 0 {
			v.first[a] = Neutral + 1
		} else {
			v.first[a] = Neutral - 1
		}
	}
}

// UncertainAxes returns the axes whose margin is below within, closest to
// the midpoint first.
func (v Vector) UncertainAxes(within int) []taxonomy.Axis {
	var out []taxonomy.Axis
	for _, a := range taxonomy.Axes() {
		if v.Margin(a) < within {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return v.Margin(out[i]) < v.Margin(out[j]) })
	return out
}

// Support returns the mean score of code's four letters, 0..100.
func (v Vector) Support(code taxonomy.Code) float64 {
	if len(code) != taxonomy.NumAxes {
		return 0
	}
	sum := 0
	for _, a := range taxonomy.Axes() {
		sum += v.Get(code.Letter(a))
	}
	return float64(sum) / taxonomy.NumAxes
}

// IsNeutral reports whether every axis sits exactly at the midpoint.
func (v Vector) IsNeutral() bool {
	for _, s := range v.first {
		if s != Neutral {
			return false
		}
	}
	return true
}

// Letters returns all eight letter scores.
func (v Vector) Letters() map[taxonomy.Letter]int {
	out := make(map[taxonomy.Letter]int, 2*taxonomy.NumAxes)
	for _, a := range taxonomy.Axes() {
		first, second := a.Letters()
		out[first] = v.first[a]
		out[second] = 100 - v.first[a]
	}
	return out
}

// String renders the vector as "L62 A40 E71 F50".
func (v Vector) String() string {
	return fmt.Sprintf("L%d A%d E%d F%d", v.first[0], v.first[1], v.first[2], v.first[3])
}

// WeightedAverage combines vectors per axis using the given weights and
// rounds back onto the integer scale. A zero total weight yields a neutral
// vector.
func WeightedAverage(vs []Vector, weights []float64) Vector {
	out := NewNeutral()
	if len(vs) == 0 || len(vs) != len(weights) {
		return out
	}
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return out
	}
	for _, a := range taxonomy.Axes() {
		sum := 0.0
		for i, v := range vs {
			if weights[i] > 0 {
				sum += float64(v.first[a]) * weights[i]
			}
		}
		out.first[a] = clamp(int(math.Round(sum / total)))
	}
	return out
}

// MarshalJSON encodes all eight letters, e.g. {"L":62,"S":38,...}.
func (v Vector) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, 2*taxonomy.NumAxes)
	for l, s := range v.Letters() {
		m[string(rune(l))] = s
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the eight-letter form. A pair that is present but
// does not sum to 100 is rejected.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := NewNeutral()
	for _, a := range taxonomy.Axes() {
		first, second := a.Letters()
		fs, hasFirst := m[string(rune(first))]
		ss, hasSecond := m[string(rune(second))]
		if (hasFirst && (fs < 0 || fs > 100)) || (hasSecond && (ss < 0 || ss > 100)) {
			return fmt.Errorf("axis %s: score out of range", a)
		}
		switch {
		case hasFirst && hasSecond:
			if fs+ss != 100 {
				return fmt.Errorf("axis %s: %c=%d and %c=%d do not sum to 100", a, first, fs, second, ss)
			}
			out.Set(first, fs)
		case hasFirst:
			out.Set(first, fs)
		case hasSecond:
			out.Set(second, ss)
		}
	}
	*v = out
	return nil
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
