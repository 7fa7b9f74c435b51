package audio

import "context"

// PermissionStatus is the capture permission as reported by the platform
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionRestricted   PermissionStatus = "restricted"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// PermissionChecker is the boundary to the platform's microphone permission
type PermissionChecker interface {
	Check() PermissionStatus
	Request(ctx context.Context) (PermissionStatus, error)
}

// AlwaysGranted is used on platforms without a capture permission model
type AlwaysGranted struct{}

func (AlwaysGranted) Check() PermissionStatus { return PermissionGranted }

func (AlwaysGranted) Request(context.Context) (PermissionStatus, error) {
	return PermissionGranted, nil
}

// StaticPermissions always reports the same status
type StaticPermissions struct {
	Status PermissionStatus
}

func (p StaticPermissions) Check() PermissionStatus { return p.Status }

func (p StaticPermissions) Request(ctx context.Context) (PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return p.Status, err
	}
	return p.Status, nil
}
