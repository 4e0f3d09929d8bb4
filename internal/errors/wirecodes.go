/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Wire status codes for client-visible failures.

The binary protocol's ErrorMessage carries a numeric code so clients in
any language can branch without parsing message text. Codes are
class-based:

  Format: CSSSS where:
    - C  = Class (1 digit)
    - SSSS = Subcode (4 digits)

  Classes:
    - 1 = OK / informational
    - 2 = Retry elsewhere (not leader, no leader known)
    - 3 = Retry later (election in progress, overloaded)
    - 4 = Client error (malformed request, invalid proposal)
    - 5 = Server error (storage failure, internal)

A client's retry policy keys off the class alone; the subcode is for
diagnostics and log correlation.
*/
package errors

// WireCode is a numeric status carried in protocol error messages.
type WireCode int64

// Wire status codes.
const (
	WireOK WireCode = 10000

	// Class 2: retry against another node
	WireNotLeader    WireCode = 20001
	WireNoLeader     WireCode = 20002
	WireNodeRemoved  WireCode = 20003

	// Class 3: retry later against the same node
	WireElectionInProgress WireCode = 30001
	WireOverloaded         WireCode = 30002
	WireSnapshotInProgress WireCode = 30003

	// Class 4: client error, do not retry
	WireMalformedRequest WireCode = 40001
	WireInvalidProposal  WireCode = 40002
	WirePayloadTooLarge  WireCode = 40003

	// Class 5: server error
	WireInternal       WireCode = 50000
	WireStorageFailure WireCode = 50001
	WireWALCorrupted   WireCode = 50002
)

// Class returns the code's leading class digit.
func (c WireCode) Class() int {
	v := int64(c)
	for v >= 10 {
		v /= 10
	}
	return int(v)
}

// RetryElsewhere reports class 2.
func (c WireCode) RetryElsewhere() bool { return c.Class() == 2 }

// RetryLater reports class 3.
func (c WireCode) RetryLater() bool { return c.Class() == 3 }

// IsClientError reports class 4.
func (c WireCode) IsClientError() bool { return c.Class() == 4 }

// IsServerError reports class 5.
func (c WireCode) IsServerError() bool { return c.Class() == 5 }

// wireByCode maps internal error codes to their wire representation.
var wireByCode = map[ErrorCode]WireCode{
	ErrCodeNotLeader:        WireNotLeader,
	ErrCodeNoQuorum:         WireNoLeader,
	ErrCodeTermConflict:     WireElectionInProgress,
	ErrCodeProtocolError:    WireMalformedRequest,
	ErrCodeInvalidValue:     WireInvalidProposal,
	ErrCodeValueOutOfRange:  WirePayloadTooLarge,
	ErrCodeStorage:          WireStorageFailure,
	ErrCodeIOError:          WireStorageFailure,
	ErrCodeWALCorrupted:     WireWALCorrupted,
	ErrCodeVoteNotDurable:   WireStorageFailure,
	ErrCodeSnapshotTransfer: WireSnapshotInProgress,
}

// ToWireCode maps any error to the code sent to clients. Foreign
// errors collapse to WireInternal.
func ToWireCode(err error) WireCode {
	if err == nil {
		return WireOK
	}
	fe, ok := err.(*FlyRaftError)
	if !ok {
		return WireInternal
	}
	if wc, ok := wireByCode[fe.Code]; ok {
		return wc
	}
	switch fe.Category {
	case CategoryConsensus:
		return WireElectionInProgress
	case CategoryConnection, CategoryReplication:
		return WireOverloaded
	case CategoryValidation:
		return WireMalformedRequest
	default:
		return WireInternal
	}
}

// WireMessage returns a short, stable description for a code.
func WireMessage(c WireCode) string {
	switch c {
	case WireOK:
		return "ok"
	case WireNotLeader:
		return "not the leader"
	case WireNoLeader:
		return "no leader known"
	case WireNodeRemoved:
		return "node removed from membership"
	case WireElectionInProgress:
		return "election in progress"
	case WireOverloaded:
		return "temporarily overloaded"
	case WireSnapshotInProgress:
		return "snapshot transfer in progress"
	case WireMalformedRequest:
		return "malformed request"
	case WireInvalidProposal:
		return "invalid proposal"
	case WirePayloadTooLarge:
		return "payload too large"
	case WireStorageFailure:
		return "storage failure"
	case WireWALCorrupted:
		return "write-ahead log corrupted"
	default:
		return "internal error"
	}
}
