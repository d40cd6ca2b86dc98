// Package pairingapi is the client side of the remote device-pairing service.
//
// The API interface lists the logical operations the wizard consumes; Client
// implements it over JSON/HTTP. Every endpoint is a POST under
// /api/v1/pairing/ and answers with the same envelope:
//
//	{"isSuccess": true, "errorInfo": "", "data": ...}
//
// # Operations
//
//	CheckSerial     serial/check  one serial       -> isSuccess, deviceType
//	StepOne         step1         serials          -> per-device pinCode, pinCodeExpiry | errorInfo
//	PollStatus      status        serials          -> per-device deviceSN, resultCode 0..3
//	RefreshPinCode  pincode       one serial       -> pinCode, pinCodeExpiry
//	StepTwo         step2         serials          -> success/failure
//	StepThree       step3         name, groupIds   -> success/failure
//	CancelPairing   cancel        serials          -> success/failure
//
// # Error Handling
//
// Every failure is an *APIError with an ErrorType. Transport failures are
// classified (timeout, refused, DNS); a 401/403 is ErrTypeAuth, which the
// wizard treats as a lost session; a well-formed answer with isSuccess=false
// is ErrTypeRejected. Only CheckSerial retries, with exponential backoff, as
// it is the only call that is safe to repeat blindly.
//
//	if _, err := client.StepOne(ctx, serials); err != nil {
//	    fmt.Println(pairingapi.GetShortErrorMessage(err))
//	    fmt.Println(pairingapi.GetTroubleshootingHint(err))
//	}
//
// # Thread Safety
//
// Client instances are safe for concurrent use.
package pairingapi
