package recognizer

import "fmt"

// blankIndex is the CTC blank class at model output index 0.
const blankIndex = 0

// DecodedSequence is the result of greedy CTC decoding: the surviving
// class indices and the probability each was emitted with.
type DecodedSequence struct {
	Indices []int
	Probs   []float64
}

// DecodeCTCGreedy decodes a [1, T, C] probability tensor: argmax per
// time step, collapse consecutive duplicates, drop blanks. The model
// output is already softmax-normalized, so values are consumed as
// probabilities directly. Decoding is stateless: the same tensor always
// yields the same sequence.
func DecodeCTCGreedy(probs []float32, shape []int64) (DecodedSequence, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return DecodedSequence{}, fmt.Errorf("unexpected logits shape %v", shape)
	}
	t, c := int(shape[1]), int(shape[2])
	if len(probs) != t*c {
		return DecodedSequence{}, fmt.Errorf("logits size %d != %dx%d", len(probs), t, c)
	}

	seq := DecodedSequence{}
	prev := -1
	for step := range t {
		row := probs[step*c : (step+1)*c]
		idx, p := argmax(row)
		if idx == blankIndex {
			prev = blankIndex
			continue
		}
		if idx == prev {
			continue
		}
		seq.Indices = append(seq.Indices, idx)
		seq.Probs = append(seq.Probs, float64(p))
		prev = idx
	}
	return seq, nil
}

// Text renders the sequence through the charset.
func (s DecodedSequence) Text(charset *Charset) string {
	out := ""
	for _, idx := range s.Indices {
		out += charset.Decode(idx)
	}
	return out
}

// Confidence is the mean probability over the kept (non-blank,
// non-repeated) positions; zero for an empty sequence.
func (s DecodedSequence) Confidence() float64 {
	if len(s.Probs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range s.Probs {
		sum += p
	}
	return sum / float64(len(s.Probs))
}

func argmax(v []float32) (int, float32) {
	if len(v) == 0 {
		return -1, 0
	}
	idx := 0
	best := v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > best {
			best = v[i]
			idx = i
		}
	}
	return idx, best
}
