package slicer

// BinarySlicer takes input float32 data and returns a byte
// with value 0 or 1 depending on the sign of the value.
type BinarySlicer struct {
	invert bool
}

func NewBinarySlicer(invert bool) *BinarySlicer {
	return &BinarySlicer{
		invert: invert,
	}
}

// invert swaps the mark and space tones, some front ends deliver the
// discriminator output with the opposite sign.
func slice(f float32, invert bool) byte {
	var b byte
	if f >= 0 {
		b = 1
	}
	if invert {
		b ^= 1
	}
	return b
}

func (b *BinarySlicer) WorkBuffer(input []float32, output []byte) int {
	for i := 0; i < len(input); i++ {
		output[i] = slice(input[i], b.invert)
	}
	return len(input)
}

func (b *BinarySlicer) Work(items []float32) []byte {
	ret := make([]byte, len(items))
	b.WorkBuffer(items, ret)
	return ret
}

func (b *BinarySlicer) PredictOutputSize(inputSize int) int {
	return inputSize
}

// ByteSlicer normalises hard decisions stored one per byte, either raw (0x00 / 0x01)
// or as ASCII digits ('0' / '1').  Anything else maps to 0.
type ByteSlicer struct{}

func NewByteSlicer() *ByteSlicer {
	return &ByteSlicer{}
}

func (b *ByteSlicer) WorkBuffer(input []byte, output []byte) int {
	for i := 0; i < len(input); i++ {
		switch input[i] {
		case 1, '1':
			output[i] = 1
		default:
			output[i] = 0
		}
	}
	return len(input)
}

func (b *ByteSlicer) PredictOutputSize(inputSize int) int {
	return inputSize
}
