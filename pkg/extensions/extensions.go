// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the capability-set interfaces that let the
// core swap backends without the core knowing which concrete
// implementation it's talking to: device auth, audit, PHI redaction, and
// data classification here; text extraction and structuring model live
// next to their concrete adapters in internal/ingestion since those are
// wired per profile rather than process-wide.
//
// Every interface in this package has a Nop default so the engine runs
// with no configuration at all; a deployment wires concrete
// implementations through Options.
package extensions

// Options groups every swappable capability the core accepts.
// DefaultOptions sets every field to its Nop default; nothing replaces a
// field left nil in an Options built by hand.
type Options struct {
	DeviceAuth  DeviceAuthProvider
	Audit       AuditLogger
	RequestAudit RequestAuditor
	Redactor    PHIRedactor
	Classifier  DataClassifier
}

// DefaultOptions returns Options with every field set to its Nop default.
func DefaultOptions() Options {
	return Options{
		DeviceAuth:   &NopDeviceAuthProvider{},
		Audit:        &NopAuditLogger{},
		RequestAudit: &NopRequestAuditor{},
		Redactor:     &NopPHIRedactor{},
		Classifier:   &NopDataClassifier{},
	}
}

func (o Options) WithDeviceAuth(p DeviceAuthProvider) Options { o.DeviceAuth = p; return o }
func (o Options) WithAudit(l AuditLogger) Options             { o.Audit = l; return o }
func (o Options) WithRequestAudit(r RequestAuditor) Options   { o.RequestAudit = r; return o }
func (o Options) WithRedactor(r PHIRedactor) Options          { o.Redactor = r; return o }
func (o Options) WithClassifier(c DataClassifier) Options     { o.Classifier = c; return o }
