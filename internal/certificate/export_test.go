package certificate

import "time"

// SetNow pins the resolver's clock in tests.
func (r *VerificationResolver) SetNow(now func() time.Time) { r.now = now }
