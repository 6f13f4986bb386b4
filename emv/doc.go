// Package emv adapts an activated ISO-DEP transport to the capability an EMV
// card-data parser drives.
//
// A parser needs exactly two things from the transport: a way to exchange a
// command APDU for a response APDU, and the historical bytes the card sent
// when it was activated. Provider is that contract; IsoDepProvider satisfies
// it over an nfc.IsoDep handle owned by someone else.
//
// Example:
//
//	tag, err := reader.Poll(ctx, 20*time.Second)
//	if err != nil {
//	    return err
//	}
//	isoDep, ok := tag.(nfc.IsoDep)
//	if !ok {
//	    return errors.New("not an ISO-DEP card")
//	}
//	provider := emv.NewProvider(isoDep)
//	resp, err := provider.Transceive(nfc.SelectFileByAIDAPDU(ppse))
//	var commErr *emv.CommunicationError
//	if errors.As(err, &commErr) {
//	    log.Printf("card read failed: %s", commErr.Message)
//	}
package emv
