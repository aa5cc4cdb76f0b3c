package sqlite

import (
	"github.com/felixgeelhaar/pacer/internal/roadmap"
	"github.com/felixgeelhaar/pacer/internal/scheduler"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ scheduler.Store    = (*PatternStore)(nil)
	_ roadmap.Repository = (*RoadmapStore)(nil)
)
