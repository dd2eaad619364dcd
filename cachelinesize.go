package chashtable

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad hot structures apart to avoid false
// sharing between goroutines hammering adjacent buckets.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
