package utils

import (
	"encoding/binary"
	"math/rand"
)

func Uint16ToBytes(i uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], i)
	return buf[:]
}

func BytesToUint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// Int16ToBytes stores a signed value in two's complement, so -1 becomes 0xFFFF
func Int16ToBytes(i int16) []byte {
	return Uint16ToBytes(uint16(i))
}

func BytesToInt16(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}

func Int32ToBytes(i int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i))
	return buf[:]
}

func BytesToInt32(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b
func CeilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// PadName returns name left-justified in a zero padded buffer of size n
func PadName(name string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, name)
	return buf
}

// TrimName strips the zero and space padding written by PadName
func TrimName(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}

// RandString returns random string with length n
func RandString(n int) string {
	var letter = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.!?/\\-_=+<>")
	b := make([]rune, n)
	for i := range b {
		b[i] = letter[rand.Intn(len(letter))]
	}
	return string(b)
}

// RandBytes returns n random bytes
func RandBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rand.Intn(256))
	}
	return b
}
