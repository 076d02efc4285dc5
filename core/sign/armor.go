package sign

import (
	"bytes"
	"encoding/json"
	"fmt"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

// armorHeader is the first line of every detached signature file. It
// lets a reader identify the format without parsing JSON and versions
// the encoding independently of the signature algorithm.
const armorHeader = "repo-trust-signature v1"

// Armor encodes a signature as the text form stored next to the
// manifest: a fixed header line followed by the JSON signature record.
func Armor(sig Signature) ([]byte, error) {
	record, err := json.Marshal(sig)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("encode signature: %w", err),
			coreerrors.CategoryInternalFailure,
			"signature_encode_failed",
			"",
			false,
		)
	}
	var buf bytes.Buffer
	buf.WriteString(armorHeader)
	buf.WriteByte('\n')
	buf.Write(record)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ParseArmor decodes a detached signature file.
func ParseArmor(raw []byte) (Signature, error) {
	trimmed := bytes.TrimSpace(raw)
	header, record, found := bytes.Cut(trimmed, []byte{'\n'})
	if !found || string(bytes.TrimSpace(header)) != armorHeader {
		return Signature{}, coreerrors.Wrap(
			fmt.Errorf("missing %q header", armorHeader),
			coreerrors.CategoryVerification,
			"signature_armor_malformed",
			"the signature file is not a repo-trust detached signature",
			false,
		)
	}
	var sig Signature
	if err := json.Unmarshal(bytes.TrimSpace(record), &sig); err != nil {
		return Signature{}, coreerrors.Wrap(
			fmt.Errorf("decode signature record: %w", err),
			coreerrors.CategoryVerification,
			"signature_record_malformed",
			"the signature file body must be a JSON signature record",
			false,
		)
	}
	if sig.Alg == "" || sig.Sig == "" {
		return Signature{}, coreerrors.Wrap(
			fmt.Errorf("signature record incomplete"),
			coreerrors.CategoryVerification,
			"signature_record_malformed",
			"the signature record must carry alg and sig fields",
			false,
		)
	}
	return sig, nil
}
