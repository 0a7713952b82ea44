package signing

// NextStatus derives the document status from which roles have signed.
// The both-false row is a defensive default only: a real submit always
// accounts for at least its own role.
func NextStatus(professionalDone, clientDone bool) ReportStatus {
	switch {
	case professionalDone && clientDone:
		return StatusFullySigned
	case professionalDone:
		return StatusProfessionalSigned
	case clientDone:
		return StatusClientSigned
	default:
		return StatusGenerated
	}
}
