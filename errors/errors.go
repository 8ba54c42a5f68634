package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyRoomID       = fmt.Errorf("empty room id")
	ErrEmptyUserID       = fmt.Errorf("empty user id")
	ErrCoordinatorClosed = fmt.Errorf("coordinator closed")
)
