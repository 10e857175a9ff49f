package model

// Job types
type JobType string

const (
	JobTypeImage JobType = "image"
	JobTypeVideo JobType = "video"
	JobType3D    JobType = "3d"
	JobTypeCAD   JobType = "cad"
)

var ValidJobTypes = []JobType{
	JobTypeImage, JobTypeVideo, JobType3D, JobTypeCAD,
}

// Job status doubles as the pipeline stage name: a job's status is always
// the stage it is currently in.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusUpscaling JobStatus = "upscaling"
	JobStatusEncoding  JobStatus = "encoding"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Scene status
type SceneStatus string

const (
	SceneStatusPending   SceneStatus = "pending"
	SceneStatusRunning   SceneStatus = "running"
	SceneStatusCompleted SceneStatus = "completed"
	SceneStatusFailed    SceneStatus = "failed"
)

// 3D generation modes
type ThreeDMode string

const (
	ThreeDModeMesh       ThreeDMode = "mesh"
	ThreeDModePointCloud ThreeDMode = "pointcloud"
	ThreeDModeNerf       ThreeDMode = "nerf"
)

// CAD output formats
type CADFormat string

const (
	CADFormatSTEP CADFormat = "step"
	CADFormatSTL  CADFormat = "stl"
	CADFormatDXF  CADFormat = "dxf"
)
