package exec

// spectest is the host module the reference test suite imports from.
type spectest struct {
	Global_i32 Global
	Global_i64 Global
	Global_f32 Global
	Global_f64 Global
}

func (*spectest) Print() {}
func (*spectest) Print_i32(int32) {}
func (*spectest) Print_i64(int64) {}
func (*spectest) Print_f32(float32) {}
func (*spectest) Print_f64(float64) {}
func (*spectest) Print_i32_f32(int32, float32) {}
func (*spectest) Print_f64_f64(float64, float64) {}

// NewSpectestModule returns the "spectest" host module.
func NewSpectestModule() *HostModule {
	return NewHostModule("spectest", &spectest{
		Global_i32: NewGlobalI32(true, 666),
		Global_i64: NewGlobalI64(true, 666),
		Global_f32: NewGlobalF32(true, 666.6),
		Global_f64: NewGlobalF64(true, 666.6),
	})
}
