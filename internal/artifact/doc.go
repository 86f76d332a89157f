// Package artifact prepares a firmware image for a local OTA session.
//
// Stage copies a built binary into the staging directory under the fixed
// name served to the device and returns a Descriptor carrying its MD5
// digest. Checksums are computed by streaming the file in fixed-size
// chunks; the digest does not depend on the chunk size.
//
// Builder wraps the external firmware build command (PlatformIO by
// default). It is optional: callers that already have a binary skip it.
//
//	b := artifact.NewBuilder(artifact.DefaultBuildConfig(projectDir, "esp12e"), logger)
//	if err := b.Build(ctx); err != nil {
//	    return err
//	}
//	desc, err := artifact.Stage("ota-local", artifact.DefaultSourcePath(projectDir, "esp12e"))
package artifact
