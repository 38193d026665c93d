package instance

import "github.com/tinylib/msgp/msgp"

const numFields = 5

// EncodeMsg implements msgp.Encodable
func (i *Instance) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(numFields); err != nil {
		return err
	}
	if err := en.WriteInt(i.User); err != nil {
		return err
	}
	if err := writeInts2(en, i.Train); err != nil {
		return err
	}
	if err := writeInts2(en, i.Test); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(i.CondProbs))); err != nil {
		return err
	}
	for _, cp := range i.CondProbs {
		if err := en.WriteArrayHeader(uint32(len(cp))); err != nil {
			return err
		}
		for _, p := range cp {
			if err := en.WriteFloat64(p); err != nil {
				return err
			}
		}
	}
	if i.NegSamples == nil {
		return en.WriteNil()
	}
	if err := en.WriteArrayHeader(uint32(len(i.NegSamples))); err != nil {
		return err
	}
	for _, neg := range i.NegSamples {
		if err := writeInts2(en, neg); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsg implements msgp.Decodable
func (i *Instance) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	if sz != numFields {
		return msgp.ArrayError{Wanted: numFields, Got: sz}
	}
	if i.User, err = dc.ReadInt(); err != nil {
		return err
	}
	if i.Train, err = readInts2(dc); err != nil {
		return err
	}
	if i.Test, err = readInts2(dc); err != nil {
		return err
	}

	n, err := dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	i.CondProbs = make([][]float64, n)
	for m := range i.CondProbs {
		k, err := dc.ReadArrayHeader()
		if err != nil {
			return err
		}
		cp := make([]float64, k)
		for j := range cp {
			if cp[j], err = dc.ReadFloat64(); err != nil {
				return err
			}
		}
		i.CondProbs[m] = cp
	}

	if dc.IsNil() {
		i.NegSamples = nil
		return dc.ReadNil()
	}
	n, err = dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	i.NegSamples = make([][][]int, n)
	for m := range i.NegSamples {
		if i.NegSamples[m], err = readInts2(dc); err != nil {
			return err
		}
	}
	return nil
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (i *Instance) Msgsize() int {
	sz := msgp.ArrayHeaderSize + msgp.IntSize + ints2Size(i.Train) + ints2Size(i.Test)
	sz += msgp.ArrayHeaderSize
	for _, cp := range i.CondProbs {
		sz += msgp.ArrayHeaderSize + len(cp)*msgp.Float64Size
	}
	sz += msgp.NilSize + msgp.ArrayHeaderSize
	for _, neg := range i.NegSamples {
		sz += ints2Size(neg)
	}
	return sz
}

func writeInts2(en *msgp.Writer, rows [][]int) error {
	if err := en.WriteArrayHeader(uint32(len(rows))); err != nil {
		return err
	}
	for _, row := range rows {
		if err := en.WriteArrayHeader(uint32(len(row))); err != nil {
			return err
		}
		for _, v := range row {
			if err := en.WriteInt(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func readInts2(dc *msgp.Reader) ([][]int, error) {
	n, err := dc.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	rows := make([][]int, n)
	for r := range rows {
		k, err := dc.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		row := make([]int, k)
		for j := range row {
			if row[j], err = dc.ReadInt(); err != nil {
				return nil, err
			}
		}
		rows[r] = row
	}
	return rows, nil
}

func ints2Size(rows [][]int) int {
	sz := msgp.ArrayHeaderSize
	for _, row := range rows {
		sz += msgp.ArrayHeaderSize + len(row)*msgp.IntSize
	}
	return sz
}
