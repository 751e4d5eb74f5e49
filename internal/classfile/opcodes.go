package classfile

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

type operand uint8

const (
	opNone      operand = iota
	opLocal             // u1 local variable index
	opByte              // s1 immediate
	opShort             // s2 immediate
	opPool1             // u1 constant pool index
	opPool2             // u2 constant pool index
	opBranch2           // s2 branch offset
	opBranch4           // s4 branch offset
	opIinc              // u1 index, s1 delta
	opNewArray          // u1 array type
	opInterface         // u2 index, u1 count, u1 zero
	opDynamic           // u2 index, u2 zero
	opMultiArray        // u2 index, u1 dimensions
	opTableSwitch
	opLookupSwitch
	opWide
)

type opcode struct {
	name    string
	operand operand
}

var opcodes = [256]opcode{
	0x00: {"nop", opNone}, 0x01: {"aconst_null", opNone},
	0x02: {"iconst_m1", opNone}, 0x03: {"iconst_0", opNone}, 0x04: {"iconst_1", opNone},
	0x05: {"iconst_2", opNone}, 0x06: {"iconst_3", opNone}, 0x07: {"iconst_4", opNone},
	0x08: {"iconst_5", opNone}, 0x09: {"lconst_0", opNone}, 0x0a: {"lconst_1", opNone},
	0x0b: {"fconst_0", opNone}, 0x0c: {"fconst_1", opNone}, 0x0d: {"fconst_2", opNone},
	0x0e: {"dconst_0", opNone}, 0x0f: {"dconst_1", opNone},
	0x10: {"bipush", opByte}, 0x11: {"sipush", opShort},
	0x12: {"ldc", opPool1}, 0x13: {"ldc_w", opPool2}, 0x14: {"ldc2_w", opPool2},
	0x15: {"iload", opLocal}, 0x16: {"lload", opLocal}, 0x17: {"fload", opLocal},
	0x18: {"dload", opLocal}, 0x19: {"aload", opLocal},
	0x1a: {"iload_0", opNone}, 0x1b: {"iload_1", opNone}, 0x1c: {"iload_2", opNone}, 0x1d: {"iload_3", opNone},
	0x1e: {"lload_0", opNone}, 0x1f: {"lload_1", opNone}, 0x20: {"lload_2", opNone}, 0x21: {"lload_3", opNone},
	0x22: {"fload_0", opNone}, 0x23: {"fload_1", opNone}, 0x24: {"fload_2", opNone}, 0x25: {"fload_3", opNone},
	0x26: {"dload_0", opNone}, 0x27: {"dload_1", opNone}, 0x28: {"dload_2", opNone}, 0x29: {"dload_3", opNone},
	0x2a: {"aload_0", opNone}, 0x2b: {"aload_1", opNone}, 0x2c: {"aload_2", opNone}, 0x2d: {"aload_3", opNone},
	0x2e: {"iaload", opNone}, 0x2f: {"laload", opNone}, 0x30: {"faload", opNone}, 0x31: {"daload", opNone},
	0x32: {"aaload", opNone}, 0x33: {"baload", opNone}, 0x34: {"caload", opNone}, 0x35: {"saload", opNone},
	0x36: {"istore", opLocal}, 0x37: {"lstore", opLocal}, 0x38: {"fstore", opLocal},
	0x39: {"dstore", opLocal}, 0x3a: {"astore", opLocal},
	0x3b: {"istore_0", opNone}, 0x3c: {"istore_1", opNone}, 0x3d: {"istore_2", opNone}, 0x3e: {"istore_3", opNone},
	0x3f: {"lstore_0", opNone}, 0x40: {"lstore_1", opNone}, 0x41: {"lstore_2", opNone}, 0x42: {"lstore_3", opNone},
	0x43: {"fstore_0", opNone}, 0x44: {"fstore_1", opNone}, 0x45: {"fstore_2", opNone}, 0x46: {"fstore_3", opNone},
	0x47: {"dstore_0", opNone}, 0x48: {"dstore_1", opNone}, 0x49: {"dstore_2", opNone}, 0x4a: {"dstore_3", opNone},
	0x4b: {"astore_0", opNone}, 0x4c: {"astore_1", opNone}, 0x4d: {"astore_2", opNone}, 0x4e: {"astore_3", opNone},
	0x4f: {"iastore", opNone}, 0x50: {"lastore", opNone}, 0x51: {"fastore", opNone}, 0x52: {"dastore", opNone},
	0x53: {"aastore", opNone}, 0x54: {"bastore", opNone}, 0x55: {"castore", opNone}, 0x56: {"sastore", opNone},
	0x57: {"pop", opNone}, 0x58: {"pop2", opNone}, 0x59: {"dup", opNone}, 0x5a: {"dup_x1", opNone},
	0x5b: {"dup_x2", opNone}, 0x5c: {"dup2", opNone}, 0x5d: {"dup2_x1", opNone}, 0x5e: {"dup2_x2", opNone},
	0x5f: {"swap", opNone},
	0x60: {"iadd", opNone}, 0x61: {"ladd", opNone}, 0x62: {"fadd", opNone}, 0x63: {"dadd", opNone},
	0x64: {"isub", opNone}, 0x65: {"lsub", opNone}, 0x66: {"fsub", opNone}, 0x67: {"dsub", opNone},
	0x68: {"imul", opNone}, 0x69: {"lmul", opNone}, 0x6a: {"fmul", opNone}, 0x6b: {"dmul", opNone},
	0x6c: {"idiv", opNone}, 0x6d: {"ldiv", opNone}, 0x6e: {"fdiv", opNone}, 0x6f: {"ddiv", opNone},
	0x70: {"irem", opNone}, 0x71: {"lrem", opNone}, 0x72: {"frem", opNone}, 0x73: {"drem", opNone},
	0x74: {"ineg", opNone}, 0x75: {"lneg", opNone}, 0x76: {"fneg", opNone}, 0x77: {"dneg", opNone},
	0x78: {"ishl", opNone}, 0x79: {"lshl", opNone}, 0x7a: {"ishr", opNone}, 0x7b: {"lshr", opNone},
	0x7c: {"iushr", opNone}, 0x7d: {"lushr", opNone}, 0x7e: {"iand", opNone}, 0x7f: {"land", opNone},
	0x80: {"ior", opNone}, 0x81: {"lor", opNone}, 0x82: {"ixor", opNone}, 0x83: {"lxor", opNone},
	0x84: {"iinc", opIinc},
	0x85: {"i2l", opNone}, 0x86: {"i2f", opNone}, 0x87: {"i2d", opNone}, 0x88: {"l2i", opNone},
	0x89: {"l2f", opNone}, 0x8a: {"l2d", opNone}, 0x8b: {"f2i", opNone}, 0x8c: {"f2l", opNone},
	0x8d: {"f2d", opNone}, 0x8e: {"d2i", opNone}, 0x8f: {"d2l", opNone}, 0x90: {"d2f", opNone},
	0x91: {"i2b", opNone}, 0x92: {"i2c", opNone}, 0x93: {"i2s", opNone},
	0x94: {"lcmp", opNone}, 0x95: {"fcmpl", opNone}, 0x96: {"fcmpg", opNone},
	0x97: {"dcmpl", opNone}, 0x98: {"dcmpg", opNone},
	0x99: {"ifeq", opBranch2}, 0x9a: {"ifne", opBranch2}, 0x9b: {"iflt", opBranch2},
	0x9c: {"ifge", opBranch2}, 0x9d: {"ifgt", opBranch2}, 0x9e: {"ifle", opBranch2},
	0x9f: {"if_icmpeq", opBranch2}, 0xa0: {"if_icmpne", opBranch2}, 0xa1: {"if_icmplt", opBranch2},
	0xa2: {"if_icmpge", opBranch2}, 0xa3: {"if_icmpgt", opBranch2}, 0xa4: {"if_icmple", opBranch2},
	0xa5: {"if_acmpeq", opBranch2}, 0xa6: {"if_acmpne", opBranch2},
	0xa7: {"goto", opBranch2}, 0xa8: {"jsr", opBranch2}, 0xa9: {"ret", opLocal},
	0xaa: {"tableswitch", opTableSwitch}, 0xab: {"lookupswitch", opLookupSwitch},
	0xac: {"ireturn", opNone}, 0xad: {"lreturn", opNone}, 0xae: {"freturn", opNone},
	0xaf: {"dreturn", opNone}, 0xb0: {"areturn", opNone}, 0xb1: {"return", opNone},
	0xb2: {"getstatic", opPool2}, 0xb3: {"putstatic", opPool2},
	0xb4: {"getfield", opPool2}, 0xb5: {"putfield", opPool2},
	0xb6: {"invokevirtual", opPool2}, 0xb7: {"invokespecial", opPool2},
	0xb8: {"invokestatic", opPool2}, 0xb9: {"invokeinterface", opInterface},
	0xba: {"invokedynamic", opDynamic},
	0xbb: {"new", opPool2}, 0xbc: {"newarray", opNewArray}, 0xbd: {"anewarray", opPool2},
	0xbe: {"arraylength", opNone}, 0xbf: {"athrow", opNone},
	0xc0: {"checkcast", opPool2}, 0xc1: {"instanceof", opPool2},
	0xc2: {"monitorenter", opNone}, 0xc3: {"monitorexit", opNone},
	0xc4: {"wide", opWide}, 0xc5: {"multianewarray", opMultiArray},
	0xc6: {"ifnull", opBranch2}, 0xc7: {"ifnonnull", opBranch2},
	0xc8: {"goto_w", opBranch4}, 0xc9: {"jsr_w", opBranch4},
}

var arrayTypes = map[uint8]string{
	4: "boolean", 5: "char", 6: "float", 7: "double",
	8: "byte", 9: "short", 10: "int", 11: "long",
}

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	PC       int
	Mnemonic string
	Args     string   // rendered operands
	Comment  string   // resolved constant, for pool operands
	Cases    []string // switch arms, "key: target"
}

// Decode decodes a method's bytecode into instructions. Unknown opcodes and
// truncated operands are errors.
func Decode(code []byte, pool Pool) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		op := opcodes[code[pc]]
		if op.name == "" {
			return out, fmt.Errorf("classfile: unknown opcode %#02x at pc %d", code[pc], pc)
		}
		ins := Instruction{PC: pc, Mnemonic: op.name}
		n, err := decodeOperands(code, pc, op.operand, pool, &ins)
		if err != nil {
			return out, err
		}
		out = append(out, ins)
		pc += n
	}
	return out, nil
}

// decodeOperands fills ins and returns the full instruction length.
func decodeOperands(code []byte, pc int, kind operand, pool Pool, ins *Instruction) (int, error) {
	need := func(n int) error {
		if pc+n > len(code) {
			return fmt.Errorf("%w: %s at pc %d", ErrTruncated, ins.Mnemonic, pc)
		}
		return nil
	}
	be := binary.BigEndian
	poolRef := func(idx uint16) {
		ins.Args = "#" + strconv.Itoa(int(idx))
		ins.Comment = describeRef(pool, idx)
	}

	switch kind {
	case opNone:
		return 1, nil
	case opLocal, opByte, opPool1, opNewArray:
		if err := need(2); err != nil {
			return 0, err
		}
		b := code[pc+1]
		switch kind {
		case opLocal:
			ins.Args = strconv.Itoa(int(b))
		case opByte:
			ins.Args = strconv.Itoa(int(int8(b)))
		case opPool1:
			poolRef(uint16(b))
		case opNewArray:
			ins.Args = arrayTypes[b]
			if ins.Args == "" {
				ins.Args = strconv.Itoa(int(b))
			}
		}
		return 2, nil
	case opShort, opPool2, opBranch2:
		if err := need(3); err != nil {
			return 0, err
		}
		v := be.Uint16(code[pc+1:])
		switch kind {
		case opShort:
			ins.Args = strconv.Itoa(int(int16(v)))
		case opPool2:
			poolRef(v)
		case opBranch2:
			ins.Args = strconv.Itoa(pc + int(int16(v)))
		}
		return 3, nil
	case opIinc:
		if err := need(3); err != nil {
			return 0, err
		}
		ins.Args = fmt.Sprintf("%d, %d", code[pc+1], int8(code[pc+2]))
		return 3, nil
	case opInterface:
		if err := need(5); err != nil {
			return 0, err
		}
		poolRef(be.Uint16(code[pc+1:]))
		ins.Args += ",  " + strconv.Itoa(int(code[pc+3]))
		return 5, nil
	case opDynamic:
		if err := need(5); err != nil {
			return 0, err
		}
		poolRef(be.Uint16(code[pc+1:]))
		ins.Args += ",  0"
		return 5, nil
	case opMultiArray:
		if err := need(4); err != nil {
			return 0, err
		}
		poolRef(be.Uint16(code[pc+1:]))
		ins.Args += ",  " + strconv.Itoa(int(code[pc+3]))
		return 4, nil
	case opBranch4:
		if err := need(5); err != nil {
			return 0, err
		}
		ins.Args = strconv.Itoa(pc + int(int32(be.Uint32(code[pc+1:]))))
		return 5, nil
	case opWide:
		if err := need(4); err != nil {
			return 0, err
		}
		inner := opcodes[code[pc+1]]
		idx := be.Uint16(code[pc+2:])
		if code[pc+1] == 0x84 {
			if err := need(6); err != nil {
				return 0, err
			}
			ins.Mnemonic = "iinc_w"
			ins.Args = fmt.Sprintf("%d, %d", idx, int16(be.Uint16(code[pc+4:])))
			return 6, nil
		}
		ins.Mnemonic = inner.name + "_w"
		ins.Args = strconv.Itoa(int(idx))
		return 4, nil
	case opTableSwitch, opLookupSwitch:
		return decodeSwitch(code, pc, kind, ins)
	}
	return 0, fmt.Errorf("classfile: unhandled operand kind %d", kind)
}

func decodeSwitch(code []byte, pc int, kind operand, ins *Instruction) (int, error) {
	be := binary.BigEndian
	off := pc + 1
	off += (4 - off%4) % 4 // pad to a 4-byte boundary from the method start
	word := func() (int32, error) {
		if off+4 > len(code) {
			return 0, fmt.Errorf("%w: %s at pc %d", ErrTruncated, ins.Mnemonic, pc)
		}
		v := int32(be.Uint32(code[off:]))
		off += 4
		return v, nil
	}

	def, err := word()
	if err != nil {
		return 0, err
	}
	if kind == opTableSwitch {
		low, err := word()
		if err != nil {
			return 0, err
		}
		high, err := word()
		if err != nil {
			return 0, err
		}
		if high < low {
			return 0, fmt.Errorf("classfile: tableswitch at pc %d: high %d < low %d", pc, high, low)
		}
		for k := low; ; k++ {
			target, err := word()
			if err != nil {
				return 0, err
			}
			ins.Cases = append(ins.Cases, fmt.Sprintf("%d: %d", k, pc+int(target)))
			if k == high {
				break
			}
		}
		ins.Args = fmt.Sprintf("{ // %d to %d", low, high)
	} else {
		npairs, err := word()
		if err != nil {
			return 0, err
		}
		if npairs < 0 {
			return 0, fmt.Errorf("classfile: lookupswitch at pc %d: negative pair count", pc)
		}
		for i := int32(0); i < npairs; i++ {
			key, err := word()
			if err != nil {
				return 0, err
			}
			target, err := word()
			if err != nil {
				return 0, err
			}
			ins.Cases = append(ins.Cases, fmt.Sprintf("%d: %d", key, pc+int(target)))
		}
		ins.Args = fmt.Sprintf("{ // %d", npairs)
	}
	ins.Cases = append(ins.Cases, fmt.Sprintf("default: %d", pc+int(def)))
	return off - pc, nil
}

// describeRef renders the comment javap prints for a pool operand:
// "Method java/lang/Object.\"<init>\":()V", "String hello".
func describeRef(pool Pool, idx uint16) string {
	kind := pool.Tag(idx)
	var prefix string
	switch kind {
	case TagMethodref:
		prefix = "Method"
	case TagInterfaceMethodref:
		prefix = "InterfaceMethod"
	case TagFieldref:
		prefix = "Field"
	case TagClass:
		prefix = "class"
	case TagString:
		prefix = "String"
	case TagInteger:
		prefix = "int"
	case TagFloat:
		prefix = "float"
	case TagLong:
		prefix = "long"
	case TagDouble:
		prefix = "double"
	case TagInvokeDynamic:
		prefix = "InvokeDynamic"
	case TagMethodType:
		prefix = "MethodType"
	case TagMethodHandle:
		prefix = "MethodHandle"
	default:
		return pool.Describe(idx)
	}
	return strings.TrimSpace(prefix + " " + pool.Describe(idx))
}
