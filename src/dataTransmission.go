package main

// разбивает данные на блоки заданного размера
type DataTransmission struct {
	curByte   int
	bytes     []byte
	blockSize int
	arraySize int
}

func newDataTransmission(bytes []byte, blockSize int) *DataTransmission {
	var transmission DataTransmission
	transmission.set(bytes, blockSize)
	return &transmission
}

func (transmission *DataTransmission) set(bytes []byte, blockSize int) {
	if blockSize < 1 {
		blockSize = 1
	}
	transmission.curByte = 0
	transmission.bytes = bytes
	transmission.arraySize = len(bytes)
	transmission.blockSize = blockSize
}

// следующий блок; последний блок может быть меньше blockSize
func (transmission *DataTransmission) popBlock() []byte {
	startIndex := transmission.curByte
	endIndex := min(startIndex+transmission.blockSize, transmission.arraySize)
	transmission.curByte = endIndex
	return transmission.bytes[startIndex:endIndex]
}

func (transmission *DataTransmission) isFinish() bool {
	return transmission.curByte >= transmission.arraySize
}
