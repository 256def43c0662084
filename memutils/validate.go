package memutils

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method
type Validatable interface {
	Validate() error
}

const (
	// CreatedFillPattern is written across new payloads when memory debugging is enabled
	CreatedFillPattern uint8 = 0xDC
	// DestroyedFillPattern is written across released payloads when memory debugging is enabled
	DestroyedFillPattern uint8 = 0xEF
)

// Fill writes pattern across every byte of data
func Fill(data []byte, pattern uint8) {
	for i := range data {
		data[i] = pattern
	}
}
