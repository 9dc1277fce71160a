// Package pdf extracts native page features from PDF files: normalized text, the text of
// the header band, a font histogram and the page size. No rendering or OCR happens here.
package pdf
