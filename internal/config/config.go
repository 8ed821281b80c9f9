// Package config holds the engine configuration. The daemon constructs one
// EngineConfig at startup (defaults, then an optional JSON overlay), validates
// it, and passes it by value into each component constructor. There is no
// ambient global configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CameraConfig carries the stereo rig intrinsics/extrinsics produced by the
// calibration collaborator. All lengths are metres, focal lengths and
// principal point are pixels.
type CameraConfig struct {
	ImageWidth  int     `json:"image_width"`
	ImageHeight int     `json:"image_height"`
	FocalLength float64 `json:"focal_length"` // used with baseline for disparity→depth
	Baseline    float64 `json:"baseline"`
	Fx          float64 `json:"fx"`
	Fy          float64 `json:"fy"`
	Cx          float64 `json:"cx"`
	Cy          float64 `json:"cy"`
}

// StereoConfig tunes the semi-global matcher.
type StereoConfig struct {
	MaxDisparity    int     `json:"max_disparity"`    // search range in pixels, exclusive upper bound
	BlockRadius     int     `json:"block_radius"`     // half-width of the matching window
	P1              float64 `json:"p1"`               // small-disparity-change penalty
	P2              float64 `json:"p2"`               // large-disparity-change penalty
	UniquenessRatio float64 `json:"uniqueness_ratio"` // best cost must beat runner-up by this factor
}

// RiskConfig holds the four ordered collision-risk distances (metres) and the
// score level that forces a brake independent of the brake distance.
type RiskConfig struct {
	SafeDistance    float64 `json:"safe_distance"`
	WarningDistance float64 `json:"warning_distance"`
	DangerDistance  float64 `json:"danger_distance"`
	BrakeDistance   float64 `json:"brake_distance"`
	RiskThreshold   float64 `json:"risk_threshold"`
}

// FusionConfig bounds the plausible depth window for fused objects.
type FusionConfig struct {
	MinDepth float64 `json:"min_depth"`
	MaxDepth float64 `json:"max_depth"`
}

// RoadRiskConfig holds the single-frame hazard thresholds.
type RoadRiskConfig struct {
	LowVisibilityBrightnessThreshold float64 `json:"low_visibility_brightness_threshold"`
	LowVisibilityContrastThreshold   float64 `json:"low_visibility_contrast_threshold"`
	WetRoadTextureThreshold          float64 `json:"wet_road_texture_threshold"`
	CurveCurvatureThreshold          float64 `json:"curve_curvature_threshold"`
	NarrowRoadDensityThreshold       float64 `json:"narrow_road_density_threshold"`
}

// TTCConfig tunes track history and the TTC alert thresholds (seconds).
type TTCConfig struct {
	HistorySize            int     `json:"history_size"`
	MinFramesForTTC        int     `json:"min_frames_for_ttc"`
	WarningThreshold       float64 `json:"warning_threshold"`
	EmergencyThreshold     float64 `json:"emergency_threshold"`
	AssociationMaxDistance float64 `json:"association_max_distance"` // track gate, metres
	MaxMisses              int     `json:"max_misses"`               // cycles before a stale track is dropped
}

// RadarConfig tunes radar↔vision association.
type RadarConfig struct {
	MaxAssociationDistance float64 `json:"max_association_distance"`
	StaleAfter             time.Duration `json:"-"`
}

// DecisionConfig sets the road-hazard brake policy.
type DecisionConfig struct {
	RoadBrakeEnabled bool    `json:"road_brake_enabled"`
	RoadBrakeLevel   float64 `json:"road_brake_level"`
}

// PipelineConfig bounds per-cycle latency.
type PipelineConfig struct {
	CycleBudget        time.Duration `json:"-"`
	DegradedAfterDrops int           `json:"degraded_after_drops"`
}

// EngineConfig is the root configuration struct, immutable after startup.
type EngineConfig struct {
	Camera   CameraConfig   `json:"camera"`
	Stereo   StereoConfig   `json:"stereo"`
	Risk     RiskConfig     `json:"risk"`
	Fusion   FusionConfig   `json:"fusion"`
	RoadRisk RoadRiskConfig `json:"road_risk"`
	TTC      TTCConfig      `json:"ttc"`
	Radar    RadarConfig    `json:"radar"`
	Decision DecisionConfig `json:"decision"`
	Pipeline PipelineConfig `json:"pipeline"`
}

// Default returns the production-default engine configuration. Values mirror
// the campus-speed deployment profile: a 10 m sensing envelope at ≥15 Hz.
func Default() EngineConfig {
	return EngineConfig{
		Camera: CameraConfig{
			ImageWidth:  640,
			ImageHeight: 480,
			FocalLength: 520.0,
			Baseline:    0.12,
			Fx:          520.0,
			Fy:          520.0,
			Cx:          320.0,
			Cy:          240.0,
		},
		Stereo: StereoConfig{
			MaxDisparity:    64,
			BlockRadius:     2,
			P1:              8,
			P2:              32,
			UniquenessRatio: 1.15,
		},
		Risk: RiskConfig{
			SafeDistance:    5.0,
			WarningDistance: 3.0,
			DangerDistance:  1.5,
			BrakeDistance:   0.8,
			RiskThreshold:   0.8,
		},
		Fusion: FusionConfig{
			MinDepth: 0.1,
			MaxDepth: 10.0,
		},
		RoadRisk: RoadRiskConfig{
			LowVisibilityBrightnessThreshold: 80,
			LowVisibilityContrastThreshold:   30,
			WetRoadTextureThreshold:          0.3,
			CurveCurvatureThreshold:          0.1,
			NarrowRoadDensityThreshold:       0.4,
		},
		TTC: TTCConfig{
			HistorySize:            10,
			MinFramesForTTC:        2,
			WarningThreshold:       3.0,
			EmergencyThreshold:     1.5,
			AssociationMaxDistance: 1.0,
			MaxMisses:              3,
		},
		Radar: RadarConfig{
			MaxAssociationDistance: 1.0,
			StaleAfter:             500 * time.Millisecond,
		},
		Decision: DecisionConfig{
			RoadBrakeEnabled: false,
			RoadBrakeLevel:   0.3,
		},
		Pipeline: PipelineConfig{
			CycleBudget:        150 * time.Millisecond,
			DegradedAfterDrops: 5,
		},
	}
}

// Overlay mirrors EngineConfig with pointer fields so a partial JSON file can
// override individual values while everything omitted keeps its default.
// The schema matches the /api/config endpoint so the same JSON works for both
// startup configuration and inspection.
type Overlay struct {
	Camera *CameraConfig `json:"camera,omitempty"`
	Stereo *StereoConfig `json:"stereo,omitempty"`

	SafeDistance    *float64 `json:"safe_distance,omitempty"`
	WarningDistance *float64 `json:"warning_distance,omitempty"`
	DangerDistance  *float64 `json:"danger_distance,omitempty"`
	BrakeDistance   *float64 `json:"brake_distance,omitempty"`
	RiskThreshold   *float64 `json:"risk_threshold,omitempty"`

	MinDepth *float64 `json:"min_depth,omitempty"`
	MaxDepth *float64 `json:"max_depth,omitempty"`

	LowVisibilityBrightnessThreshold *float64 `json:"low_visibility_brightness_threshold,omitempty"`
	LowVisibilityContrastThreshold   *float64 `json:"low_visibility_contrast_threshold,omitempty"`
	WetRoadTextureThreshold          *float64 `json:"wet_road_texture_threshold,omitempty"`
	CurveCurvatureThreshold          *float64 `json:"curve_curvature_threshold,omitempty"`
	NarrowRoadDensityThreshold       *float64 `json:"narrow_road_density_threshold,omitempty"`

	HistorySize            *int     `json:"history_size,omitempty"`
	MinFramesForTTC        *int     `json:"min_frames_for_ttc,omitempty"`
	TTCWarningThreshold    *float64 `json:"ttc_warning_threshold,omitempty"`
	TTCEmergencyThreshold  *float64 `json:"ttc_emergency_threshold,omitempty"`
	AssociationMaxDistance *float64 `json:"association_max_distance,omitempty"`
	MaxMisses              *int     `json:"max_misses,omitempty"`

	MaxRadarAssociationDistance *float64 `json:"max_radar_association_distance,omitempty"`
	RadarStaleAfter             *string  `json:"radar_stale_after,omitempty"` // duration string like "500ms"

	RoadBrakeEnabled *bool    `json:"road_brake_enabled,omitempty"`
	RoadBrakeLevel   *float64 `json:"road_brake_level,omitempty"`

	CycleBudget        *string `json:"cycle_budget,omitempty"` // duration string like "150ms"
	DegradedAfterDrops *int    `json:"degraded_after_drops,omitempty"`
}

// maxConfigFileSize bounds overlay files to keep a corrupt path from OOMing
// the device at boot.
const maxConfigFileSize = 1 * 1024 * 1024

// Load builds an EngineConfig from defaults plus the overlay at path.
// An empty path returns the defaults. The result is validated; a threshold
// ordering violation is returned as an error and is startup-fatal for the
// caller, never deferred to runtime.
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	fi, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Size() > maxConfigFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fi.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	var o Overlay
	if err := json.Unmarshal(data, &o); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}
	if err := o.Apply(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Apply copies every set overlay field onto cfg.
func (o *Overlay) Apply(cfg *EngineConfig) error {
	if o.Camera != nil {
		cfg.Camera = *o.Camera
	}
	if o.Stereo != nil {
		cfg.Stereo = *o.Stereo
	}

	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setF(&cfg.Risk.SafeDistance, o.SafeDistance)
	setF(&cfg.Risk.WarningDistance, o.WarningDistance)
	setF(&cfg.Risk.DangerDistance, o.DangerDistance)
	setF(&cfg.Risk.BrakeDistance, o.BrakeDistance)
	setF(&cfg.Risk.RiskThreshold, o.RiskThreshold)

	setF(&cfg.Fusion.MinDepth, o.MinDepth)
	setF(&cfg.Fusion.MaxDepth, o.MaxDepth)

	setF(&cfg.RoadRisk.LowVisibilityBrightnessThreshold, o.LowVisibilityBrightnessThreshold)
	setF(&cfg.RoadRisk.LowVisibilityContrastThreshold, o.LowVisibilityContrastThreshold)
	setF(&cfg.RoadRisk.WetRoadTextureThreshold, o.WetRoadTextureThreshold)
	setF(&cfg.RoadRisk.CurveCurvatureThreshold, o.CurveCurvatureThreshold)
	setF(&cfg.RoadRisk.NarrowRoadDensityThreshold, o.NarrowRoadDensityThreshold)

	setI(&cfg.TTC.HistorySize, o.HistorySize)
	setI(&cfg.TTC.MinFramesForTTC, o.MinFramesForTTC)
	setF(&cfg.TTC.WarningThreshold, o.TTCWarningThreshold)
	setF(&cfg.TTC.EmergencyThreshold, o.TTCEmergencyThreshold)
	setF(&cfg.TTC.AssociationMaxDistance, o.AssociationMaxDistance)
	setI(&cfg.TTC.MaxMisses, o.MaxMisses)

	setF(&cfg.Radar.MaxAssociationDistance, o.MaxRadarAssociationDistance)
	if o.RadarStaleAfter != nil {
		d, err := time.ParseDuration(*o.RadarStaleAfter)
		if err != nil {
			return fmt.Errorf("invalid radar_stale_after %q: %w", *o.RadarStaleAfter, err)
		}
		cfg.Radar.StaleAfter = d
	}

	if o.RoadBrakeEnabled != nil {
		cfg.Decision.RoadBrakeEnabled = *o.RoadBrakeEnabled
	}
	setF(&cfg.Decision.RoadBrakeLevel, o.RoadBrakeLevel)

	if o.CycleBudget != nil {
		d, err := time.ParseDuration(*o.CycleBudget)
		if err != nil {
			return fmt.Errorf("invalid cycle_budget %q: %w", *o.CycleBudget, err)
		}
		cfg.Pipeline.CycleBudget = d
	}
	setI(&cfg.Pipeline.DegradedAfterDrops, o.DegradedAfterDrops)

	return nil
}

// Validate enforces threshold ordering and basic sanity. Invalid ordering is
// a configuration error, never a runtime one.
func (c *EngineConfig) Validate() error {
	r := c.Risk
	if !(r.SafeDistance > r.WarningDistance &&
		r.WarningDistance > r.DangerDistance &&
		r.DangerDistance > r.BrakeDistance &&
		r.BrakeDistance > 0) {
		return fmt.Errorf("risk distances must satisfy safe > warning > danger > brake > 0, got %.2f/%.2f/%.2f/%.2f",
			r.SafeDistance, r.WarningDistance, r.DangerDistance, r.BrakeDistance)
	}
	if r.RiskThreshold <= 0 || r.RiskThreshold > 1 {
		return fmt.Errorf("risk_threshold must be in (0, 1], got %.2f", r.RiskThreshold)
	}
	if c.Fusion.MinDepth < 0 || c.Fusion.MinDepth >= c.Fusion.MaxDepth {
		return fmt.Errorf("fusion depth window requires 0 <= min < max, got [%.2f, %.2f]",
			c.Fusion.MinDepth, c.Fusion.MaxDepth)
	}
	if c.TTC.MinFramesForTTC < 2 {
		return fmt.Errorf("min_frames_for_ttc must be >= 2, got %d", c.TTC.MinFramesForTTC)
	}
	if c.TTC.HistorySize < c.TTC.MinFramesForTTC {
		return fmt.Errorf("history_size (%d) must be >= min_frames_for_ttc (%d)",
			c.TTC.HistorySize, c.TTC.MinFramesForTTC)
	}
	if c.TTC.EmergencyThreshold <= 0 || c.TTC.WarningThreshold < c.TTC.EmergencyThreshold {
		return fmt.Errorf("ttc thresholds require warning >= emergency > 0, got %.2f/%.2f",
			c.TTC.WarningThreshold, c.TTC.EmergencyThreshold)
	}
	if c.TTC.MaxMisses < 1 {
		return fmt.Errorf("max_misses must be >= 1, got %d", c.TTC.MaxMisses)
	}
	if c.Radar.MaxAssociationDistance <= 0 {
		return fmt.Errorf("max_radar_association_distance must be > 0, got %.2f", c.Radar.MaxAssociationDistance)
	}
	if c.Camera.FocalLength <= 0 || c.Camera.Baseline <= 0 {
		return fmt.Errorf("camera focal length and baseline must be > 0, got %.2f/%.3f",
			c.Camera.FocalLength, c.Camera.Baseline)
	}
	if c.Camera.Fx <= 0 || c.Camera.Fy <= 0 {
		return fmt.Errorf("camera fx/fy must be > 0, got %.2f/%.2f", c.Camera.Fx, c.Camera.Fy)
	}
	if c.Stereo.MaxDisparity < 8 {
		return fmt.Errorf("max_disparity must be >= 8, got %d", c.Stereo.MaxDisparity)
	}
	if c.Stereo.BlockRadius < 1 {
		return fmt.Errorf("block_radius must be >= 1, got %d", c.Stereo.BlockRadius)
	}
	if c.Pipeline.CycleBudget <= 0 {
		return fmt.Errorf("cycle_budget must be > 0, got %v", c.Pipeline.CycleBudget)
	}
	if c.Pipeline.DegradedAfterDrops < 1 {
		return fmt.Errorf("degraded_after_drops must be >= 1, got %d", c.Pipeline.DegradedAfterDrops)
	}
	return nil
}
