// MMU error and progress codes
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package protocol

import "fmt"

// ErrorCode is the error word reported by the MMU. Values with bit 15 set
// are errors. The low range holds named, mutually exclusive faults; when a
// TMC subsystem bit is set the upper bits carry driver fault flags.
type ErrorCode uint16

const (
	ErrorRunning ErrorCode = 0x0000
	ErrorOK      ErrorCode = 0x0001

	FindaDidntSwitchOn    ErrorCode = 0x8001
	FindaDidntSwitchOff   ErrorCode = 0x8002
	FSensorDidntSwitchOn  ErrorCode = 0x8003
	FSensorDidntSwitchOff ErrorCode = 0x8004
	FilamentAlreadyLoaded ErrorCode = 0x8005
	InvalidTool           ErrorCode = 0x8006
	HomingFailed          ErrorCode = 0x8007
	MoveFailed            ErrorCode = 0x8008
	StallGuardTriggered   ErrorCode = 0x8009

	HomingSelectorFailed = HomingFailed | TMCSelectorBit
	HomingIdlerFailed    = HomingFailed | TMCIdlerBit
	MovePulleyFailed     = MoveFailed | TMCPulleyBit
	MoveSelectorFailed   = MoveFailed | TMCSelectorBit
	MoveIdlerFailed      = MoveFailed | TMCIdlerBit
	StalledPulley        = StallGuardTriggered | TMCPulleyBit

	FilamentChange           ErrorCode = 0x8029
	QueueFull                ErrorCode = 0x802B
	VersionMismatch          ErrorCode = 0x802C
	ProtocolError            ErrorCode = 0x802D
	MMUNotResponding         ErrorCode = 0x802E
	Internal                 ErrorCode = 0x802F
	FindaVsEEPROMDisreprancy ErrorCode = 0x8030

	// Subsystem bits. Only one is considered at a time.
	TMCPulleyBit   ErrorCode = 0x0040
	TMCSelectorBit ErrorCode = 0x0080
	TMCIdlerBit    ErrorCode = 0x0100

	// Driver fault flags, valid together with a subsystem bit.
	TMCIoinMismatch             ErrorCode = 0x8200
	TMCReset                    ErrorCode = 0x8400
	TMCUndervoltageOnChargePump ErrorCode = 0x8800
	TMCShortToGround            ErrorCode = 0x9000
	TMCOverTemperatureWarn      ErrorCode = 0xA000
	TMCOverTemperatureError     ErrorCode = 0xC000
)

// IsError reports whether the error bit is set.
func (e ErrorCode) IsError() bool {
	return e&0x8000 != 0
}

// Has reports whether every bit of flag is set in e.
func (e ErrorCode) Has(flag ErrorCode) bool {
	return e&flag == flag
}

func (e ErrorCode) String() string {
	switch e {
	case ErrorRunning:
		return "RUNNING"
	case ErrorOK:
		return "OK"
	case FindaDidntSwitchOn:
		return "FINDA_DIDNT_SWITCH_ON"
	case FindaDidntSwitchOff:
		return "FINDA_DIDNT_SWITCH_OFF"
	case FSensorDidntSwitchOn:
		return "FSENSOR_DIDNT_SWITCH_ON"
	case FSensorDidntSwitchOff:
		return "FSENSOR_DIDNT_SWITCH_OFF"
	case FilamentAlreadyLoaded:
		return "FILAMENT_ALREADY_LOADED"
	case InvalidTool:
		return "INVALID_TOOL"
	case HomingSelectorFailed:
		return "HOMING_SELECTOR_FAILED"
	case HomingIdlerFailed:
		return "HOMING_IDLER_FAILED"
	case MovePulleyFailed:
		return "MOVE_PULLEY_FAILED"
	case MoveSelectorFailed:
		return "MOVE_SELECTOR_FAILED"
	case MoveIdlerFailed:
		return "MOVE_IDLER_FAILED"
	case StalledPulley:
		return "STALLED_PULLEY"
	case FilamentChange:
		return "FILAMENT_CHANGE"
	case QueueFull:
		return "QUEUE_FULL"
	case VersionMismatch:
		return "VERSION_MISMATCH"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case MMUNotResponding:
		return "MMU_NOT_RESPONDING"
	case Internal:
		return "INTERNAL"
	case FindaVsEEPROMDisreprancy:
		return "FINDA_VS_EEPROM_DISREPANCY"
	default:
		return fmt.Sprintf("0x%04X", uint16(e))
	}
}

// ProgressCode is a coarse milestone of the command the MMU is executing.
type ProgressCode uint8

const (
	ProgressOK ProgressCode = iota
	EngagingIdler
	DisengagingIdler
	UnloadingToFinda
	UnloadingToPulley
	FeedingToFinda
	FeedingToBondtech
	FeedingToNozzle
	AvoidingGrind
	FinishingMoves
	ERRDisengagingIdler
	ERREngagingIdler
	ERRWaitingForUser
	ERRInternal
	ERRHelpingFilament
	ERRTMCFailed
	UnloadingFilament
	LoadingFilament
	SelectingFilamentSlot
	PreparingBlade
	PushingFilament
	PerformingCut
	ReturningSelector
	ParkingSelector
	EjectingFilament
	RetractingFromFinda
	ProgressHoming
	MovingSelector
	FeedingToFSensor

	progressCodeCount
)

var progressText = [progressCodeCount]string{
	ProgressOK:            "OK",
	EngagingIdler:         "Engaging idler",
	DisengagingIdler:      "Disengaging idler",
	UnloadingToFinda:      "Unloading to FINDA",
	UnloadingToPulley:     "Unloading to pulley",
	FeedingToFinda:        "Feeding to FINDA",
	FeedingToBondtech:     "Feeding to drive gear",
	FeedingToNozzle:       "Feeding to nozzle",
	AvoidingGrind:         "Avoiding grind",
	FinishingMoves:        "Finishing moves",
	ERRDisengagingIdler:   "ERR Disengaging idler",
	ERREngagingIdler:      "ERR Engaging idler",
	ERRWaitingForUser:     "ERR Wait for User",
	ERRInternal:           "ERR Internal",
	ERRHelpingFilament:    "ERR Helping filament",
	ERRTMCFailed:          "ERR TMC failed",
	UnloadingFilament:     "Unloading filament",
	LoadingFilament:       "Loading filament",
	SelectingFilamentSlot: "Selecting filament slot",
	PreparingBlade:        "Preparing blade",
	PushingFilament:       "Pushing filament",
	PerformingCut:         "Performing cut",
	ReturningSelector:     "Returning selector",
	ParkingSelector:       "Parking selector",
	EjectingFilament:      "Ejecting filament",
	RetractingFromFinda:   "Retracting from FINDA",
	ProgressHoming:        "Homing",
	MovingSelector:        "Moving selector",
	FeedingToFSensor:      "Feeding to FSensor",
}

func (p ProgressCode) String() string {
	if p < progressCodeCount {
		return progressText[p]
	}
	return fmt.Sprintf("progress(%d)", uint8(p))
}

// ProgressCodes returns every defined progress code in ascending order.
func ProgressCodes() []ProgressCode {
	codes := make([]ProgressCode, 0, progressCodeCount)
	for p := ProgressOK; p < progressCodeCount; p++ {
		codes = append(codes, p)
	}
	return codes
}
