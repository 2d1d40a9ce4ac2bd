package pose

// Config holds parameters for homography estimation and pose refinement.
type Config struct {
	Iterations      int     // RANSAC iterations
	ReprojThreshold float64 // Max transfer error in pixels to count as inlier
	Seed            int64   // RNG seed; estimation is deterministic for a given seed
	MinFOV          float64 // Lower clamp for the refined field of view (degrees)
	MaxFOV          float64 // Upper clamp for the refined field of view (degrees)
	MaxHorizon      float64 // Absolute clamp for the composed horizon (degrees)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Iterations:      2000,
		ReprojThreshold: 3.0,
		Seed:            42,
		MinFOV:          10,
		MaxFOV:          120,
		MaxHorizon:      85,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	if c.ReprojThreshold <= 0 {
		c.ReprojThreshold = d.ReprojThreshold
	}
	if c.MinFOV <= 0 {
		c.MinFOV = d.MinFOV
	}
	if c.MaxFOV <= 0 {
		c.MaxFOV = d.MaxFOV
	}
	if c.MaxHorizon <= 0 {
		c.MaxHorizon = d.MaxHorizon
	}
	return c
}
