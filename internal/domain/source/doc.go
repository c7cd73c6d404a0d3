// Package source contains the pinned upstream artifact: one URL and the
// digest its bytes must hash to.
package source
