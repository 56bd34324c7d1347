package ui

// iconBytes is a 16x16 PNG used as the tray icon.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x36, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x60, 0x80, 0x02, 0x09,
	0x09, 0xb9, 0xff, 0xa4, 0x60, 0x06, 0x64, 0x40, 0xaa, 0x66, 0x14, 0x43,
	0xc8, 0xd5, 0x0c, 0x37, 0x64, 0xd4, 0x00, 0x54, 0x03, 0xfe, 0x5f, 0xe3,
	0x82, 0x63, 0x74, 0x85, 0xb8, 0xe4, 0x06, 0x99, 0x01, 0x23, 0x35, 0x1a,
	0x29, 0xce, 0x4c, 0x94, 0x66, 0x67, 0x00, 0x63, 0xdf, 0x59, 0xa6, 0x9f,
	0x97, 0x9d, 0x3f, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}
