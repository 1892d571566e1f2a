// Package require forwards the github.com/alecthomas/assert functions
// used by our tests. Each of them calls FailNow() on failure.
package require

import "github.com/alecthomas/assert"

// TestingT is an interface wrapper around *testing.T
type TestingT = assert.TestingT

// NoError asserts that a function returned no error (i.e. `nil`).
//
//	recs, err := store.LoadAll()
//	require.NoError(t, err)
func NoError(t TestingT, err error, msgAndArgs ...any) {
	assert.NoError(t, err, msgAndArgs...)
}

// Len asserts that the specified object has specific length.
// Len also fails if the object has a type that len() not accept.
//
//	require.Len(t, recs, 3)
func Len(t TestingT, object any, length int, msgAndArgs ...any) {
	assert.Len(t, object, length, msgAndArgs...)
}

// Equal asserts that two objects are equal.
//
// Pointer variable equality is determined based on the equality of the
// referenced values (as opposed to the memory addresses).
func Equal(t TestingT, expected any, actual any, msgAndArgs ...any) {
	assert.Equal(t, expected, actual, msgAndArgs...)
}

// True asserts that the specified value is true.
func True(t TestingT, value bool, msgAndArgs ...any) {
	assert.True(t, value, msgAndArgs...)
}
