package ddr

import "testing"

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []uint64{
		0x0000000000000000,
		0x1122334455667788,
		0xffffffffffffffff,
		0x00000000cafebabe,
	}

	for _, word := range cases {
		b := ToBytes(word)

		if got := FromBytes(b); got != word {
			t.Errorf("FromBytes(ToBytes(%#x)) = %#x, want %#x", word, got, word)
		}
	}
}

func TestFromBytesToBytesRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][BusWidth]byte{
		{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	}

	for _, b := range cases {
		word := FromBytes(b)

		if got := ToBytes(word); got != b {
			t.Errorf("ToBytes(FromBytes(%v)) = %v, want %v", b, got, b)
		}
	}
}

func TestLittleEndianOrder(t *testing.T) {
	t.Parallel()

	// 0xCAFEBABE stored at the bottom 4 bytes should read back BE,BA,FE,CA
	// in ascending byte order, matching scenario #2 in spec.md §8.
	b := ToBytes(0xcafebabe)

	want := [BusWidth]byte{0xbe, 0xba, 0xfe, 0xca, 0x00, 0x00, 0x00, 0x00}
	if b != want {
		t.Errorf("ToBytes(0xcafebabe) = %#v, want %#v", b, want)
	}
}
